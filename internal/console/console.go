package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/dafibh/jokebox/jokebox-backend/internal/reconcile"
	"github.com/rs/zerolog"
)

// ErrInputClosed is returned by Confirm when input ends mid-prompt
var ErrInputClosed = errors.New("input closed")

type view int

const (
	viewActive view = iota
	viewTrash
)

func (v view) String() string {
	if v == viewTrash {
		return "trash"
	}
	return "jokes"
}

// Deps are the client components the console drives
type Deps struct {
	Store       *reconcile.ItemStore
	Active      *reconcile.List
	Trash       *reconcile.List
	Coordinator *reconcile.Coordinator
	History     *reconcile.History
}

// Console is a line-oriented terminal front end for the joke lists.
// It is also the coordinator's Notifier and Confirmer.
type Console struct {
	lines   chan string
	readErr error
	out     io.Writer
	outMu   sync.Mutex
	deps    Deps
	view    view
	logger  zerolog.Logger
}

// New creates a Console reading commands from in and writing to out
func New(in io.Reader, out io.Writer, deps Deps, logger zerolog.Logger) *Console {
	c := &Console{
		lines:  make(chan string),
		out:    out,
		deps:   deps,
		logger: logger.With().Str("component", "console").Logger(),
	}
	go c.scan(in)
	return c
}

// scan feeds input lines to readLine so a blocked read never outlives ctx
func (c *Console) scan(in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		c.lines <- sc.Text()
	}
	c.readErr = sc.Err()
	close(c.lines)
}

// readLine returns the next input line, or io.EOF once input ends
func (c *Console) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			if c.readErr != nil {
				return "", c.readErr
			}
			return "", io.EOF
		}
		return line, nil
	}
}

func (c *Console) printf(format string, args ...interface{}) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Notify implements reconcile.Notifier
func (c *Console) Notify(n reconcile.Notification) {
	if n.Level == reconcile.LevelError {
		c.printf("! %s\n", n.Message)
		return
	}
	c.printf("* %s\n", n.Message)
}

// Confirm implements reconcile.Confirmer with a y/n question on the console
func (c *Console) Confirm(ctx context.Context, prompt string) (bool, error) {
	for {
		c.printf("%s [y/N] ", prompt)
		line, err := c.readLine(ctx)
		if errors.Is(err, io.EOF) {
			return false, ErrInputClosed
		}
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
	}
}

// Run loads the joke list and processes commands until quit, end of input
// or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	c.printf("jokebox - type 'help' for commands\n")
	c.switchView(ctx, viewActive)

	for {
		c.printf("%s> ", c.view)
		line, err := c.readLine(ctx)
		if err != nil {
			c.printf("\n")
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if quit := c.Execute(ctx, fields[0], fields[1:]); quit {
			return nil
		}
	}
}

// Execute runs one command and reports whether the console should exit
func (c *Console) Execute(ctx context.Context, cmd string, args []string) (quit bool) {
	switch strings.ToLower(cmd) {
	case "help", "?":
		c.printHelp()
	case "quit", "exit", "q":
		return true
	case "list", "jokes":
		c.switchView(ctx, viewActive)
	case "trash":
		c.switchView(ctx, viewTrash)
	case "refresh":
		c.switchView(ctx, c.view)
	case "more":
		c.loadMore(ctx)
	case "up":
		c.withID(args, func(id int64) { c.rate(ctx, id, 1) })
	case "down":
		c.withID(args, func(id int64) { c.rate(ctx, id, -1) })
	case "rate":
		c.rateBy(ctx, args)
	case "delete", "rm":
		c.withID(args, func(id int64) {
			c.report(c.deps.Coordinator.Delete(ctx, id))
			c.render()
		})
	case "restore":
		c.withID(args, func(id int64) {
			c.report(c.deps.Coordinator.Restore(ctx, id))
			c.render()
		})
	case "restore-all":
		c.report(c.deps.Coordinator.RestoreAll(ctx))
		c.render()
	case "versions", "show":
		c.withID(args, func(id int64) { c.showVersions(ctx, id) })
	default:
		c.printf("unknown command %q, type 'help'\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	c.printf(`commands:
  list              show active jokes (reloads)
  trash             show the trash (reloads)
  more              load the next page
  refresh           reload the current view
  up <id>           rate a joke up
  down <id>         rate a joke down
  rate <id> <n>     change a rating by n
  delete <id>       move a joke to the trash
  restore <id>      take a joke out of the trash
  restore-all       empty the trash back into the list
  versions <id>     show a joke and its version history
  quit              exit
`)
}

func (c *Console) current() *reconcile.List {
	if c.view == viewTrash {
		return c.deps.Trash
	}
	return c.deps.Active
}

// switchView makes v current and sends it the became-active refresh
func (c *Console) switchView(ctx context.Context, v view) {
	c.view = v
	if _, err := c.current().Refresh(ctx); err != nil {
		c.printf("! Couldn't load %s: %v\n", v, err)
		return
	}
	c.render()
}

func (c *Console) loadMore(ctx context.Context) {
	list := c.current()
	if !list.HasMore() {
		c.printf("no more jokes\n")
		return
	}
	loaded, err := list.LoadMore(ctx)
	if err != nil {
		c.printf("! Couldn't load more: %v\n", err)
		return
	}
	if !loaded {
		c.printf("still loading\n")
		return
	}
	c.render()
}

func (c *Console) render() {
	list := c.current()
	items := list.Items()
	if len(items) == 0 {
		if c.view == viewTrash {
			c.printf("trash is empty\n")
		} else {
			c.printf("no jokes\n")
		}
		return
	}
	for _, joke := range items {
		c.printf("%s\n", formatJoke(joke))
	}
	footer := fmt.Sprintf("%d of %d", len(items), list.Total())
	if list.HasMore() {
		footer += " - 'more' for the next page"
	}
	c.printf("%s\n", footer)
}

func formatJoke(joke domain.Joke) string {
	line := fmt.Sprintf("#%-5d %+4d  %s", joke.ID, joke.Rating, firstLine(joke.Text))
	if joke.Tags != "" {
		line += "  [" + joke.Tags + "]"
	}
	return line
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i] + " ..."
	}
	return text
}

func (c *Console) withID(args []string, fn func(id int64)) {
	if len(args) < 1 {
		c.printf("usage: <command> <id>\n")
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		c.printf("invalid id %q\n", args[0])
		return
	}
	fn(id)
}

func (c *Console) rateBy(ctx context.Context, args []string) {
	if len(args) < 2 {
		c.printf("usage: rate <id> <delta>\n")
		return
	}
	delta, err := strconv.Atoi(args[1])
	if err != nil {
		c.printf("invalid delta %q\n", args[1])
		return
	}
	c.withID(args[:1], func(id int64) { c.rate(ctx, id, delta) })
}

func (c *Console) rate(ctx context.Context, id int64, delta int) {
	outcome, err := c.deps.Coordinator.AdjustRating(ctx, id, delta)
	c.report(outcome, err)
	if joke, ok := c.deps.Store.Get(id); ok {
		c.printf("%s\n", formatJoke(joke))
	}
}

func (c *Console) report(outcome reconcile.Outcome, err error) {
	if err != nil {
		if errors.Is(err, reconcile.ErrUnknownJoke) {
			c.printf("that joke isn't loaded, try 'list' or 'trash'\n")
			return
		}
		c.printf("! %v\n", err)
		return
	}
	switch outcome {
	case reconcile.OutcomeSkipped:
		c.printf("already in progress\n")
	case reconcile.OutcomeCancelled:
		c.printf("cancelled\n")
	}
}

func (c *Console) showVersions(ctx context.Context, id int64) {
	if joke, ok := c.deps.Store.Get(id); ok {
		c.printf("%s\n", formatJoke(joke))
		c.printf("%s\n", joke.Text)
	}
	versions, err := c.deps.History.Load(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrJokeNotFound) {
			c.printf("no joke #%d\n", id)
			return
		}
		c.printf("! Couldn't load versions: %v\n", err)
		return
	}
	if len(versions) == 0 {
		c.printf("no versions\n")
		return
	}
	for _, v := range versions {
		c.printf("  %s  %-8s %s\n", v.Timestamp.Local().Format("2006-01-02 15:04"), v.Kind, firstLine(v.Text))
	}
}
