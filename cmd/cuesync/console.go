package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
)

var errUsage = errors.New("usage: play [offset] | pause | seek <seconds> | status | quit")

func runConsole(ctx context.Context, tr *transport, stop context.CancelFunc) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt: "cuesync> ",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("play"),
			readline.PcItem("pause"),
			readline.PcItem("seek"),
			readline.PcItem("status"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		log.Printf("Console unavailable: %v", err)
		return
	}
	defer rl.Close()
	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				log.Printf("Console: %v", err)
			}
			stop()
			return
		}
		out, quit, err := execute(ctx, tr, line)
		if err != nil {
			fmt.Fprintln(rl.Stderr(), err)
		} else if out != "" {
			fmt.Fprintln(rl.Stdout(), out)
		}
		if quit {
			stop()
			return
		}
	}
}

// execute runs one console command and returns the text to show.
func execute(ctx context.Context, tr *transport, line string) (out string, quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false, nil
	}
	switch fields[0] {
	case "play":
		offset := 0.0
		if len(fields) > 1 {
			if offset, err = strconv.ParseFloat(fields[1], 64); err != nil {
				return "", false, errUsage
			}
		}
		return "", false, tr.Play(ctx, offset)
	case "pause":
		return "", false, tr.Pause(ctx)
	case "seek":
		if len(fields) < 2 {
			return "", false, errUsage
		}
		pos, perr := strconv.ParseFloat(fields[1], 64)
		if perr != nil {
			return "", false, errUsage
		}
		return "", false, tr.Seek(ctx, pos)
	case "status":
		st, err := tr.Status(ctx)
		if err != nil {
			return "", false, err
		}
		state := "paused"
		if st.Playing {
			state = "playing"
		}
		return fmt.Sprintf("%s %.2f/%.2fs  %.1f bpm  %d frames", state, st.Elapsed, st.Duration, st.BPM, st.Frames), false, nil
	case "quit", "exit":
		return "", true, nil
	default:
		return "", false, errUsage
	}
}
