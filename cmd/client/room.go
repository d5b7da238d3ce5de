package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/chat"
	"github.com/dkeye/Huddle/internal/client"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <room>",
	Short: "Create a room and wait for others",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoom(cmd, domain.RoomName(args[0]), true)
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join an existing room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoom(cmd, domain.RoomName(args[0]), false)
	},
}

func connect(ctx context.Context, cfg *config.ClientConfig, events client.Events) (*client.Session, error) {
	media, err := rtc.NewLocalMedia("huddle", cfg.Video, nil)
	if err != nil {
		return nil, err
	}
	factory, err := rtc.NewFactory(
		rtc.DefaultWebRTCConfig(cfg.STUNURLs),
		rtc.NewZerologFactory(log.Logger, zerolog.WarnLevel),
		media,
	)
	if err != nil {
		return nil, err
	}
	return client.Connect(ctx, client.Options{
		ServerURL:       cfg.ServerURL,
		Nickname:        cfg.Nickname,
		SendsVideo:      cfg.Video,
		Factory:         factory,
		Events:          events,
		DownloadDir:     cfg.DownloadDir,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		TransferTimeout: cfg.TransferTimeout,
	})
}

func runRoom(cmd *cobra.Command, name domain.RoomName, create bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	sess, err := connect(ctx, cfg, &printer{w: out})
	if err != nil {
		return err
	}
	defer sess.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	var room domain.RoomSnapshot
	if create {
		room, err = sess.CreateRoom(ctx, name)
	} else {
		room, err = sess.JoinRoom(ctx, name)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "in room %s as %s (%d/%d)\n", room.Name, sess.Self().Nickname, len(room.Participants), domain.DefaultRoomCapacity)

	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(ctx, out, sess, line)
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}

// handleLine runs one console command. Plain text is chat.
func handleLine(ctx context.Context, w io.Writer, sess *client.Session, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		n, err := sess.Chat(line)
		if n == 0 && err == nil {
			fmt.Fprintln(w, "(nobody to hear you)")
		}
		return false, err
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return true, nil
	case "/leave":
		return true, sess.Leave(ctx)
	case "/nick":
		if len(fields) < 2 {
			return false, errors.New("usage: /nick <name>")
		}
		name, err := sess.Rename(ctx, strings.Join(fields[1:], " "))
		if err == nil {
			fmt.Fprintf(w, "you are now %s\n", name)
		}
		return false, err
	case "/video":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return false, errors.New("usage: /video on|off")
		}
		return false, sess.ToggleVideo(fields[1] == "on")
	case "/send":
		if len(fields) < 2 {
			return false, errors.New("usage: /send <file>...")
		}
		paths := fields[1:]
		go func() {
			if err := sess.SendFiles(ctx, paths); err != nil {
				fmt.Fprintf(w, "! send: %v\n", err)
				return
			}
			fmt.Fprintf(w, "sent %d file(s)\n", len(paths))
		}()
		return false, nil
	case "/rooms":
		return false, printRooms(ctx, w, sess)
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}

// printer writes session events to the console.
type printer struct {
	w io.Writer
}

func short(id domain.UserID) string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func (p *printer) OnChat(from domain.UserID, msg chat.Envelope) {
	fmt.Fprintf(p.w, "[%s] %s: %s\n", msg.TimeString, short(from), msg.Message)
}

func (p *printer) OnFileAnnounced(from domain.UserID, name string, size int64) {
	fmt.Fprintf(p.w, "%s is sending %s (%d bytes)\n", short(from), name, size)
}

func (p *printer) OnFileReceived(from domain.UserID, path string) {
	fmt.Fprintf(p.w, "received %s from %s\n", path, short(from))
}

func (p *printer) OnPeerConnected(peer domain.UserID) {
	fmt.Fprintf(p.w, "connected to %s\n", short(peer))
}

func (p *printer) OnPeerRemoved(peer domain.UserID) {
	fmt.Fprintf(p.w, "%s left\n", short(peer))
}

func (p *printer) OnHighlight(peer domain.UserID) {
	if peer == "" {
		fmt.Fprintln(p.w, "highlight cleared")
		return
	}
	fmt.Fprintf(p.w, "highlighting %s\n", short(peer))
}

func (p *printer) OnRoomsChanged() {}

func (p *printer) OnError(peer domain.UserID, err error) {
	fmt.Fprintf(os.Stderr, "! %s: %v\n", short(peer), err)
}
