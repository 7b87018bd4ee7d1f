package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BradenHooton/billdesk/internal/apiclient"
	"github.com/BradenHooton/billdesk/internal/loginflow"
	"github.com/BradenHooton/billdesk/internal/session"
	"github.com/BradenHooton/billdesk/internal/tui"
)

// runPlain drives the same login flow and shell with line prompts, for
// pipes and terminals that cannot host the full-screen interface.
func runPlain(ctx context.Context, app *application, in io.Reader, out io.Writer) error {
	lines := bufio.NewScanner(in)

	signedIn := make(chan session.State, 1)
	unsubscribe := app.gate.Subscribe(func(state session.State) {
		if state.Authenticated {
			select {
			case signedIn <- state:
			default:
			}
		}
	})
	defer unsubscribe()

	state := app.gate.Confirm()
	if !state.Authenticated {
		var err error
		state, err = plainLogin(ctx, app, lines, out, signedIn)
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Signed in as %s.\n", state.User.DisplayName())
	return plainShell(ctx, app, lines, out)
}

func plainLogin(ctx context.Context, app *application, lines *bufio.Scanner, out io.Writer, signedIn <-chan session.State) (session.State, error) {
	flow := app.newFlow(nil)
	defer flow.Close()

	for {
		snapshot := flow.Snapshot()
		if snapshot.Step == loginflow.StepDone {
			select {
			case state := <-signedIn:
				return state, nil
			case <-time.After(app.cfg.Login.SuccessDelay + 5*time.Second):
				return session.State{}, errors.New("login completed but the session did not start")
			case <-ctx.Done():
				return session.State{}, ctx.Err()
			}
		}

		var prompt string
		switch snapshot.Step {
		case loginflow.StepEmail:
			prompt = "Email or phone: "
		case loginflow.StepOTP:
			prompt = fmt.Sprintf("Code (%s left, r to resend, b to go back): ", tui.FormatCountdown(snapshot.Remaining))
		}

		fmt.Fprint(out, prompt)
		if !lines.Scan() {
			if err := lines.Err(); err != nil {
				return session.State{}, err
			}
			return session.State{}, io.EOF
		}
		input := strings.TrimSpace(lines.Text())

		var err error
		switch {
		case snapshot.Step == loginflow.StepEmail:
			err = flow.SubmitContact(ctx, input)
		case input == "r":
			err = flow.Resend(ctx)
		case input == "b":
			err = flow.Back()
		default:
			if err = flow.SetCode(ctx, input); err == nil && flow.Snapshot().Step == loginflow.StepOTP {
				err = flow.Verify(ctx)
			}
		}

		if err != nil {
			fmt.Fprintln(out, loginflow.UserMessage(err))
			continue
		}
		if message := flow.Snapshot().Message; message != "" {
			fmt.Fprintln(out, message)
		}
	}
}

func plainShell(ctx context.Context, app *application, lines *bufio.Scanner, out io.Writer) error {
	fmt.Fprintf(out, "Resources: %s\n", strings.Join(apiclient.Resources, ", "))

	for {
		fmt.Fprint(out, "> ")
		if !lines.Scan() {
			return lines.Err()
		}
		fields := strings.Fields(lines.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return nil
		case "logout":
			app.gate.OnLogout(ctx)
			fmt.Fprintln(out, "Signed out.")
			return nil
		case "list":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: list <resource>")
				continue
			}
			items, err := app.lister.List(ctx, fields[1])
			if err != nil {
				fmt.Fprintln(out, loginflow.UserMessage(err))
				if !app.gate.State().Authenticated {
					return nil
				}
				continue
			}
			for _, item := range items {
				fmt.Fprintln(out, "  "+tui.SummarizeItem(item))
			}
			fmt.Fprintf(out, "%d %s\n", len(items), fields[1])
		default:
			fmt.Fprintln(out, "commands: list <resource>, logout, quit")
		}
	}
}
