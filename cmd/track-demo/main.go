// Command track-demo sends one event through the full tracking pipeline.
//
// Exit codes:
//
//	0 = every request succeeded
//	1 = at least one request failed
//	2 = usage or setup error
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	tracker "github.com/c0deZ3R0/go-track-kit"
	"github.com/c0deZ3R0/go-track-kit/config"
	"github.com/c0deZ3R0/go-track-kit/event"
	"github.com/c0deZ3R0/go-track-kit/identity"
	"github.com/c0deZ3R0/go-track-kit/logging"
	"github.com/c0deZ3R0/go-track-kit/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("track-demo", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		configPath string
		domain     string
		kind       string
		email      string
		phone      string
		clientID   string
		productID  string
		price      string
		currency   string
		deeplink   string
		customType string
		dryRun     bool
		timeout    time.Duration
	)
	cmd.StringVar(&configPath, "config", "", "Path to a YAML config file")
	cmd.StringVar(&domain, "domain", "", "Tenant domain (overrides the config file)")
	cmd.StringVar(&kind, "event", "info", "Event to send: purchase, view, cart, custom, info")
	cmd.StringVar(&email, "email", "", "Identify the user by email first")
	cmd.StringVar(&phone, "phone", "", "Identify the user by phone first")
	cmd.StringVar(&clientID, "client-id", "", "Identify the user by client user id first")
	cmd.StringVar(&productID, "product", "demo-product", "Product id for item events")
	cmd.StringVar(&price, "price", "19.99", "Item price")
	cmd.StringVar(&currency, "currency", "USD", "ISO 4217 currency code")
	cmd.StringVar(&deeplink, "deeplink", "", "Deeplink for view and cart events")
	cmd.StringVar(&customType, "type", "demo", "Custom event type")
	cmd.BoolVar(&dryRun, "dry-run", false, "Print request URLs instead of sending them")
	cmd.DurationVar(&timeout, "timeout", 30*time.Second, "Overall deadline")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(configPath, domain)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	logging.Init(cfg.Logging)

	e, err := buildEvent(kind, productID, price, currency, deeplink, customType)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var opts []tracker.Option
	if dryRun {
		opts = append(opts, tracker.WithTransport(printingTransport(stdout)))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t, err := tracker.New(ctx, cfg, opts...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer t.Close()

	if email != "" || phone != "" || clientID != "" {
		var idOpts []identity.Option
		if email != "" {
			idOpts = append(idOpts, identity.WithEmail(email))
		}
		if phone != "" {
			idOpts = append(idOpts, identity.WithPhone(phone))
		}
		if clientID != "" {
			idOpts = append(idOpts, identity.WithClientUserID(clientID))
		}
		ids, err := identity.Build(idOpts...)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		if err := t.Identify(ctx, ids); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}

	res, err := t.RecordAndWait(ctx, e)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	visitorID, _ := t.Identifiers().VisitorID()
	logging.Info("event recorded",
		slog.String("event", e.Name()),
		slog.String("dispatch_id", res.DispatchID),
		slog.String("domain", res.Domain),
		slog.String("visitor_id", visitorID),
		slog.Int("requests", res.Requests),
		slog.Int("failed", res.Failed()))

	_, _ = fmt.Fprintf(stdout, "%s: %d/%d requests succeeded (domain %s)\n",
		e.Name(), res.Succeeded, res.Requests, res.Domain)
	for _, err := range res.Errors {
		_, _ = fmt.Fprintf(stderr, "  failed: %v\n", err)
	}
	if res.Failed() > 0 {
		return 1
	}
	return 0
}

func loadConfig(path, domain string) (config.Config, error) {
	if path == "" {
		cfg := config.ApplyEnv(config.Default(domain))
		if domain != "" {
			cfg.Domain = domain
		}
		return cfg, cfg.Validate()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return config.Config{}, err
	}
	if domain != "" {
		cfg.Domain = domain
	}
	return cfg, nil
}

func buildEvent(kind, productID, price, currency, deeplink, customType string) (event.Event, error) {
	switch strings.ToLower(kind) {
	case "info":
		return event.InfoEvent{}, nil
	case "custom":
		return event.NewCustomEvent(customType, map[string]string{"source": "track-demo"})
	}

	p, err := event.ParsePrice(price, currency)
	if err != nil {
		return nil, err
	}
	item, err := event.NewItem(productID, productID+"-default", p, event.WithName("Demo product"))
	if err != nil {
		return nil, err
	}
	items := []event.Item{item}

	switch strings.ToLower(kind) {
	case "purchase":
		order, err := event.NewOrder(fmt.Sprintf("demo-%d", time.Now().Unix()))
		if err != nil {
			return nil, err
		}
		return event.NewPurchaseEvent(items, order, nil)
	case "view":
		return event.NewProductViewEvent(items, deeplink)
	case "cart":
		return event.NewAddToCartEvent(items, deeplink)
	default:
		return nil, fmt.Errorf("unknown event %q", kind)
	}
}

// printingTransport writes every POST to w and answers 204. Tag lookups get a
// 404 so the logical domain is used.
func printingTransport(w io.Writer) transport.Func {
	return func(_ context.Context, method, url string) (*transport.Response, error) {
		if method == "GET" {
			return &transport.Response{StatusCode: 404}, nil
		}
		_, _ = fmt.Fprintf(w, "%s %s\n", method, url)
		return &transport.Response{StatusCode: 204}, nil
	}
}
