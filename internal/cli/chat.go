package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/harun/supportdesk/pkg/router"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// GoodbyeMessage is printed when the customer ends the chat.
const GoodbyeMessage = "Thank you for contacting support. Have a great day!"

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

var exitWords = map[string]bool{
	"quit":    true,
	"exit":    true,
	"bye":     true,
	"goodbye": true,
}

var (
	chatConversation string
	chatWatch        bool
	chatVerbose      bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive support conversation",
	Long: `Start an interactive support conversation in the terminal.

Each line you type is one customer message. Pass --conversation to resume a
stored conversation; otherwise a new conversation id is generated. Type quit,
exit, bye or goodbye to leave.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatConversation, "conversation", "", "conversation id to resume")
	chatCmd.Flags().BoolVar(&chatWatch, "watch", false, "re-index playbooks when files change")
	chatCmd.Flags().BoolVar(&chatVerbose, "verbose", false, "mirror logs to stderr")
	rootCmd.AddCommand(chatCmd)
}

// stepper advances a conversation by one customer message.
type stepper interface {
	Step(ctx context.Context, conversationID, text string) (router.Reply, error)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{
		Console: chatVerbose,
		Router:  true,
		Cleanup: true,
		Watch:   chatWatch,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.playbook != nil {
		if _, err := a.playbook.Sync(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Playbook sync failed")
		}
	}

	conversationID := chatConversation
	if conversationID == "" {
		conversationID, err = newConversationID()
		if err != nil {
			return err
		}
	}

	return chatLoop(ctx, a.router, conversationID, cmd.InOrStdin(), cmd.OutOrStdout())
}

func newConversationID() (string, error) {
	id, err := gonanoid.Generate(idAlphabet, 12)
	if err != nil {
		return "", fmt.Errorf("failed to generate conversation id: %w", err)
	}
	return "conv-" + id, nil
}

// chatLoop reads one message per line and prints every reply message until
// input ends, ctx is cancelled, or the customer types an exit word.
func chatLoop(ctx context.Context, s stepper, conversationID string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "%s %s\n", color.New(color.Bold).Sprint("Support chat"), color.HiBlackString("(conversation %s)", conversationID))
	fmt.Fprintln(out, color.HiBlackString("Type quit to leave."))
	fmt.Fprintln(out)

	lines, readErr := readLines(ctx, in)
	for {
		fmt.Fprint(out, color.CyanString("You: "))

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return <-readErr
			}
			line = l
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if isExitWord(text) {
			fmt.Fprintf(out, "%s %s\n", color.GreenString("Support:"), GoodbyeMessage)
			return nil
		}

		reply, err := s.Step(ctx, conversationID, text)
		for _, msg := range reply.Messages {
			fmt.Fprintf(out, "%s %s\n", color.GreenString("Support:"), msg)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("Step finished with error")
			if len(reply.Messages) == 0 {
				fmt.Fprintf(out, "%s %v\n", color.RedString("Error:"), err)
			}
		}
		fmt.Fprintln(out)
	}
}

// readLines feeds lines from in until EOF or ctx ends. The error channel
// receives the scanner error once lines is closed.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

func isExitWord(text string) bool {
	word := strings.Trim(strings.ToLower(strings.TrimSpace(text)), ".!")
	return exitWords[word]
}
