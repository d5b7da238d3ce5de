package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/client"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the rooms on the coordinator",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		sess, err := client.Connect(ctx, client.Options{ServerURL: cfg.ServerURL})
		if err != nil {
			return err
		}
		defer sess.Close()

		return printRooms(ctx, os.Stdout, sess)
	},
}

func printRooms(ctx context.Context, w io.Writer, sess *client.Session) error {
	rooms, err := sess.Rooms(ctx)
	if err != nil {
		return err
	}
	var ids []domain.UserID
	for _, r := range rooms {
		ids = append(ids, r.Participants...)
	}
	users, err := sess.Users(ctx, ids)
	if err != nil {
		return err
	}
	renderRooms(w, rooms, users)
	return nil
}

func renderRooms(w io.Writer, rooms map[domain.RoomName]domain.RoomSnapshot, users map[domain.UserID]*domain.User) {
	if len(rooms) == 0 {
		fmt.Fprintln(w, "no rooms")
		return
	}
	names := make([]domain.RoomName, 0, len(rooms))
	for name := range rooms {
		names = append(names, name)
	}
	slices.Sort(names)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Room", "Members", "Participants", "Video"})
	for _, name := range names {
		r := rooms[name]
		members := make([]string, 0, len(r.Participants))
		for _, id := range r.Participants {
			members = append(members, displayName(id, users[id]))
		}
		t.AppendRow(table.Row{
			string(name),
			fmt.Sprintf("%d/%d", len(r.Participants), domain.DefaultRoomCapacity),
			strings.Join(members, ", "),
			len(r.VideoSenders),
		})
	}
	t.Render()
}

func displayName(id domain.UserID, u *domain.User) string {
	if u == nil {
		return short(id)
	}
	return fmt.Sprintf("%s (%s)", u.Nickname, short(id))
}
