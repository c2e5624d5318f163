package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"

	"deleonpos/backend/internal/client"
	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/logging"
	"deleonpos/backend/internal/money"
	"deleonpos/backend/internal/reconcile"
)

const usage = `usage: posctl [flags] <command> [command flags]

commands:
  summary   print the cash closure for a register or the whole day
  session   print the register session and what can be done with it
  open      open the register session with an opening float
  add       add cash to the open session
  close     count the drawer and close the session
  code      show, set or clear the manager code
  watch     follow realtime events until interrupted

flags:
`

type globals struct {
	baseURL  string
	username string
	password string
	tenantID string
	register string
	date     string
	logLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	g, rest, err := parseGlobals(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	logging.InitWithWriter(stderr, g.logLevel, true)
	if len(rest) == 0 {
		fmt.Fprint(stderr, "missing command\n\n"+usage)
		return 2
	}

	cmd, cmdArgs := rest[0], rest[1:]
	handler, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	c := client.New(g.baseURL, nil)
	loginCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	resp, err := c.Login(loginCtx, g.username, g.password)
	cancel()
	if err != nil {
		log.Error().Err(err).Str("username", g.username).Msg("login failed")
		return 1
	}
	log.Debug().Str("role", resp.Role).Str("tenant_id", resp.TenantID).Msg("logged in")

	if err := handler(ctx, c, g, cmdArgs, stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		log.Error().Err(err).Str("command", cmd).Msg(describe(err))
		return 1
	}
	return 0
}

func parseGlobals(args []string, stderr io.Writer) (globals, []string, error) {
	fs := flag.NewFlagSet("posctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	var g globals
	fs.StringVar(&g.baseURL, "url", envOr("POS_URL", "http://localhost:8080"), "backend base URL")
	fs.StringVar(&g.username, "user", envOr("POS_USER", ""), "username")
	fs.StringVar(&g.password, "password", envOr("POS_PASSWORD", ""), "password")
	fs.StringVar(&g.tenantID, "tenant", envOr("POS_TENANT", ""), "tenant id (superadmin only)")
	fs.StringVar(&g.register, "register", envOr("POS_REGISTER", "caja-1"), "register id")
	fs.StringVar(&g.date, "date", "", "business day YYYY-MM-DD, default today")
	fs.StringVar(&g.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level")
	if err := fs.Parse(args); err != nil {
		return globals{}, nil, err
	}
	if strings.TrimSpace(g.username) == "" {
		fmt.Fprintln(stderr, "-user or POS_USER is required")
		return globals{}, nil, errors.New("missing user")
	}
	return g, fs.Args(), nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// describe turns the common backend refusals into something a cashier can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, client.ErrInvalidLocalInput):
		return "invalid input"
	case client.IsInvalidManagerCode(err):
		return "manager code required or incorrect"
	case client.IsConflict(err):
		return "already exists"
	case client.IsForbidden(err):
		return "not allowed for this role"
	case client.IsNotFound(err):
		return "not found"
	default:
		return "request failed"
	}
}

type command func(ctx context.Context, c *client.Client, g globals, args []string, out io.Writer) error

var commands = map[string]command{
	"summary": cmdSummary,
	"session": cmdSession,
	"open":    cmdOpen,
	"add":     cmdAdd,
	"close":   cmdClose,
	"code":    cmdManagerCode,
	"watch":   cmdWatch,
}

func cmdSummary(ctx context.Context, c *client.Client, g globals, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	format := fs.String("format", "table", "table, json or csv")
	all := fs.Bool("all", false, "combine every register of the day")
	if err := fs.Parse(args); err != nil {
		return err
	}
	register := g.register
	if *all {
		register = ""
	}
	summary, err := c.CashSummary(ctx, g.tenantID, g.date, register)
	if err != nil {
		return err
	}
	switch *format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	case "csv":
		_, err := io.WriteString(out, reconcile.ToCSV(summary))
		return err
	case "table":
		return printSummary(out, summary)
	default:
		return fmt.Errorf("%w: unknown format %q", client.ErrInvalidLocalInput, *format)
	}
}

func printSummary(out io.Writer, s reconcile.Summary) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	scope := s.RegisterID
	if scope == "" {
		scope = "all registers"
	}
	fmt.Fprintf(tw, "%s\t%s\t\n", s.DateKey, scope)
	for _, b := range s.Buckets {
		fmt.Fprintf(tw, "%s (%d)\t%s\t\n", b.Label, b.Count, money.Format(b.Total))
	}
	fmt.Fprintf(tw, "Total ventas\t%s\t\n", money.Format(s.GrandTotal))
	fmt.Fprintf(tw, "Fondo\t%s\t\n", money.Format(s.OpeningFloat))
	fmt.Fprintf(tw, "Menudo agregado\t%s\t\n", money.Format(s.AddedCash))
	fmt.Fprintf(tw, "Efectivo en caja\t%s\t\n", money.Format(s.CashInRegister))
	fmt.Fprintf(tw, "Merma\t%s\t\n", money.Format(s.WasteCost))
	fmt.Fprintf(tw, "Venta neta\t%s\t\n", money.Format(s.NetSales))
	if s.Counted != nil && s.Variance != nil {
		fmt.Fprintf(tw, "Contado\t%s\t\n", money.Format(*s.Counted))
		fmt.Fprintf(tw, "Diferencia\t%s\t\n", money.Format(*s.Variance))
	}
	fmt.Fprintf(tw, "Estado\t%s\t\n", s.VarianceStatus)
	return tw.Flush()
}

func loadView(ctx context.Context, c *client.Client, g globals) (*client.CashRegisterView, client.Snapshot, error) {
	view := client.NewCashRegisterView(c, g.tenantID, g.register)
	snap, err := view.Load(ctx, g.date)
	return view, snap, err
}

func printSession(out io.Writer, snap client.Snapshot) {
	fmt.Fprintf(out, "%s %s: %s\n", snap.Date, snap.Summary.RegisterID, snap.Phase)
	if snap.Session != nil {
		fmt.Fprintf(out, "  fondo %s, menudo %s, efectivo en caja %s\n",
			money.Format(snap.Session.OpeningFloat), money.Format(snap.Session.AddedTotal), money.Format(snap.Summary.CashInRegister))
		if snap.Session.Closing != nil {
			fmt.Fprintf(out, "  contado %s por %s (%s)\n",
				money.Format(snap.Session.Closing.CountedTotal), snap.Session.Closing.ClosedBy, snap.Summary.VarianceStatus)
		}
	}
	if len(snap.Actions) > 0 {
		fmt.Fprintf(out, "  acciones: %s\n", strings.Join(snap.Actions, ", "))
	}
}

func cmdSession(ctx context.Context, c *client.Client, g globals, args []string, out io.Writer) error {
	_, snap, err := loadView(ctx, c, g)
	if err != nil {
		return err
	}
	printSession(out, snap)
	return nil
}

func cmdOpen(ctx context.Context, c *client.Client, g globals, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	float := fs.String("float", "0", "opening float")
	if err := fs.Parse(args); err != nil {
		return err
	}
	amount, err := client.ParseAmount(*float)
	if err != nil {
		return err
	}
	view, _, err := loadView(ctx, c, g)
	if err != nil {
		return err
	}
	snap, err := view.Open(ctx, amount)
	if client.IsConflict(err) {
		return fmt.Errorf("%w; use add or an opening adjustment instead", err)
	}
	if err != nil {
		return err
	}
	printSession(out, snap)
	return nil
}

func cmdAdd(ctx context.Context, c *client.Client, g globals, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	raw := fs.String("amount", "", "amount to add")
	note := fs.String("note", "", "note")
	if err := fs.Parse(args); err != nil {
		return err
	}
	amount, err := client.ParseAmount(*raw)
	if err != nil {
		return err
	}
	view, _, err := loadView(ctx, c, g)
	if err != nil {
		return err
	}
	snap, err := view.AddCash(ctx, amount, *note)
	if err != nil {
		return err
	}
	printSession(out, snap)
	return nil
}

func cmdClose(ctx context.Context, c *client.Client, g globals, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("close", flag.ContinueOnError)
	raw := fs.String("counted", "", "counted cash in the drawer")
	code := fs.String("code", envOr("POS_MANAGER_CODE", ""), "manager code")
	note := fs.String("note", "", "note")
	adjust := fs.Bool("adjust", false, "correct the count of a closed session")
	if err := fs.Parse(args); err != nil {
		return err
	}
	counted, err := client.ParseAmount(*raw)
	if err != nil {
		return err
	}
	view, _, err := loadView(ctx, c, g)
	if err != nil {
		return err
	}
	var snap client.Snapshot
	if *adjust {
		snap, err = view.AdjustClose(ctx, counted, *code, *note)
	} else {
		snap, err = view.Close(ctx, counted, *code, *note)
	}
	if err != nil {
		return err
	}
	printSession(out, snap)
	return nil
}

func cmdManagerCode(ctx context.Context, c *client.Client, g globals, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("code", flag.ContinueOnError)
	set := fs.String("set", "", "new manager code")
	remove := fs.Bool("clear", false, "remove the manager code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var (
		status domain.ManagerCodeStatus
		err    error
	)
	switch {
	case *remove:
		if err := c.ClearManagerCode(ctx, g.tenantID); err != nil {
			return err
		}
		fmt.Fprintln(out, "manager code cleared")
		return nil
	case *set != "":
		status, err = c.SetManagerCode(ctx, domain.ManagerCodeSetRequest{TenantID: g.tenantID, Code: *set})
	default:
		status, err = c.ManagerCodeStatus(ctx, g.tenantID)
	}
	if err != nil {
		return err
	}
	if !status.Configured {
		fmt.Fprintln(out, "manager code not configured")
		return nil
	}
	fmt.Fprintf(out, "manager code configured (%s)\n", status.Hint)
	return nil
}

func cmdWatch(ctx context.Context, c *client.Client, g globals, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	register := fs.Bool("register", false, "print the register figures after every change")
	if err := fs.Parse(args); err != nil {
		return err
	}
	conn := client.NewConnection(c)
	conn.On("*", func(e domain.Event) {
		fmt.Fprintf(out, "%s %s %s\n", e.At.Format(time.RFC3339), e.Type, e.EntityID)
	})
	if *register {
		view, snap, err := loadView(ctx, c, g)
		if err != nil {
			return err
		}
		printSession(out, snap)
		defer view.Bind(ctx, conn)()
		view.OnChange(func(s client.Snapshot) { printSession(out, s) })
	}
	if err := conn.Connect(ctx, g.tenantID); err != nil {
		return err
	}
	defer conn.Disconnect()
	log.Info().Str("tenant_id", g.tenantID).Msg("watching events, press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}
