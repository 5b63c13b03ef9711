package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/erain9/tradesim/pkg/api"
	"github.com/erain9/tradesim/pkg/core"
	"github.com/fatih/color"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	errUsage                = errors.New("invalid usage")
	errInsufficientHoldings = errors.New("insufficient holdings")
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	fs := flag.NewFlagSet("tradesim-client", flag.ExitOnError)
	serverAddr := fs.String("addr", "localhost:50051", "The server address in the format host:port")
	acct := fs.String("account", envOr("TRADESIM_ACCOUNT", "trader"), "Account orders are booked to")
	timeout := fs.Duration("timeout", 10*time.Second, "Per-command timeout (ignored by book -watch)")
	fs.Usage = func() { printUsage(os.Stderr) }
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	conn, err := api.Dial(*serverAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to server")
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := &cli{client: api.NewClient(conn), out: os.Stdout, account: *acct, timeout: *timeout}
	if err := c.run(ctx, fs.Args()); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			printUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type cli struct {
	client  *api.Client
	out     io.Writer
	account string
	timeout time.Duration
}

func (c *cli) run(ctx context.Context, args []string) error {
	command, args := strings.ToLower(args[0]), args[1:]

	if command == "book" {
		return c.book(ctx, args)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch command {
	case "products":
		return c.products(ctx)
	case "buy", "sell":
		return c.createOrder(ctx, command, args)
	case "cancel":
		if len(args) != 1 {
			return fmt.Errorf("%w: cancel <order_id>", errUsage)
		}
		return c.cancelOrder(ctx, args[0])
	case "order":
		if len(args) != 1 {
			return fmt.Errorf("%w: order <order_id>", errUsage)
		}
		return c.getOrder(ctx, args[0])
	case "owned":
		if len(args) != 1 {
			return fmt.Errorf("%w: owned <product>", errUsage)
		}
		return c.owned(ctx, args[0])
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

// parseInterspersed lets flags appear before, between or after positional
// arguments.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%w: %v", errUsage, err)
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func (c *cli) products(ctx context.Context) error {
	resp, err := c.client.ListProducts(ctx)
	if err != nil {
		return err
	}
	for _, p := range resp.Products {
		fmt.Fprintln(c.out, p)
	}
	return nil
}

// parseOrder validates the command line before anything is sent
func parseOrder(command string, args []string, defaultAccount string) (*api.CreateOrderRequest, error) {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	expiry := fs.String("expiry", "GTC", "GTC or FOK")
	acct := fs.String("account", defaultAccount, "Account the order is booked to")

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return nil, err
	}
	if len(positional) != 3 {
		return nil, fmt.Errorf("%w: %s <product> <quantity> <price> [-expiry GTC|FOK] [-account a]", errUsage, command)
	}

	product := positional[0]
	qty, err := strconv.ParseInt(positional[1], 10, 64)
	if err != nil || qty <= 0 {
		return nil, fmt.Errorf("%w: quantity %q", core.ErrInvalidQuantity, positional[1])
	}
	price, err := fpdecimal.FromString(positional[2])
	if err != nil || !price.GreaterThan(fpdecimal.Zero) {
		return nil, fmt.Errorf("%w: price %q", core.ErrInvalidPrice, positional[2])
	}
	exp, err := core.ParseExpiry(*expiry)
	if err != nil {
		return nil, err
	}
	if *acct == "" {
		return nil, fmt.Errorf("%w: account must not be empty", errUsage)
	}

	return &api.CreateOrderRequest{
		Product:  product,
		Side:     strings.ToUpper(command),
		Price:    price.String(),
		Quantity: qty,
		Expiry:   exp.String(),
		Account:  *acct,
	}, nil
}

func (c *cli) createOrder(ctx context.Context, command string, args []string) error {
	req, err := parseOrder(command, args, c.account)
	if err != nil {
		return err
	}

	// a sell must be covered by what the account already holds
	if req.Side == core.Sell.String() {
		owned, err := c.client.GetQuantityOwned(ctx, &api.QuantityOwnedRequest{Account: req.Account, Product: req.Product})
		if err != nil {
			return err
		}
		if owned.Quantity < req.Quantity {
			return fmt.Errorf("%w: %s owns %d %s, cannot sell %d",
				errInsufficientHoldings, req.Account, owned.Quantity, req.Product, req.Quantity)
		}
	}

	resp, err := c.client.CreateOrder(ctx, req)
	if err != nil {
		return err
	}
	c.printOrder(resp)
	return nil
}

func (c *cli) cancelOrder(ctx context.Context, id string) error {
	resp, err := c.client.CancelOrder(ctx, &api.CancelOrderRequest{OrderID: id})
	if err != nil {
		return err
	}
	c.printOrder(resp)
	return nil
}

func (c *cli) getOrder(ctx context.Context, id string) error {
	resp, err := c.client.GetOrder(ctx, &api.GetOrderRequest{OrderID: id})
	if err != nil {
		return err
	}
	c.printOrder(resp)
	return nil
}

func (c *cli) owned(ctx context.Context, product string) error {
	resp, err := c.client.GetQuantityOwned(ctx, &api.QuantityOwnedRequest{Account: c.account, Product: product})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s owns %d %s\n", resp.Account, resp.Quantity, resp.Product)
	return nil
}

func statusColor(status string) func(format string, a ...interface{}) string {
	switch core.OrderStatus(status) {
	case core.StatusFilled:
		return color.New(color.FgGreen).SprintfFunc()
	case core.StatusPartiallyFilled:
		return color.New(color.FgYellow).SprintfFunc()
	case core.StatusCanceled, core.StatusRejected:
		return color.New(color.FgRed).SprintfFunc()
	default:
		return color.New(color.FgCyan).SprintfFunc()
	}
}

func (c *cli) printOrder(o *api.OrderResponse) {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Order\t%s\n", o.OrderID)
	fmt.Fprintf(w, "Status\t%s\n", statusColor(o.Status)("%s", o.Status))
	fmt.Fprintf(w, "Product\t%s\n", o.Product)
	fmt.Fprintf(w, "Side\t%s %s\n", o.Side, o.Expiry)
	fmt.Fprintf(w, "Price\t%s\n", o.Price)
	fmt.Fprintf(w, "Filled\t%d / %d\n", o.Filled, o.Quantity)
	if o.Account != "" {
		fmt.Fprintf(w, "Account\t%s\n", o.Account)
	}
	_ = w.Flush()
}

func (c *cli) book(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("book", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	depth := fs.Int("depth", core.TopOfBookDepth, "Levels per side")
	watch := fs.Bool("watch", false, "Stream updates until interrupted")

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("%w: book <product> [-depth n] [-watch]", errUsage)
	}
	req := &api.TopOfBookRequest{Product: positional[0], Depth: int32(*depth)}

	if !*watch {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		resp, err := c.client.GetTopOfBook(callCtx, req)
		if err != nil {
			return err
		}
		return c.printBook(resp)
	}

	stream, err := c.client.SubscribeTopOfBook(ctx, req)
	if err != nil {
		return err
	}
	for {
		resp, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		fmt.Fprintf(c.out, "\n%s #%d\n", resp.Product, resp.Sequence)
		if err := c.printBook(resp); err != nil {
			return err
		}
	}
}

func (c *cli) printBook(resp *api.TopOfBookResponse) error {
	cyan := color.New(color.FgCyan).SprintfFunc()
	red := color.New(color.FgRed).SprintfFunc()
	green := color.New(color.FgGreen).SprintfFunc()

	w := tabwriter.NewWriter(c.out, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", cyan("Price"), cyan("Quantity"), cyan("Orders"), cyan("Side"))

	// asks print worst first so the spread sits in the middle
	for i := len(resp.Asks) - 1; i >= 0; i-- {
		l := resp.Asks[i]
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t\n", l.Price, l.Quantity, l.OrderCount, red("ASK"))
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", "-----", "-----", "-----", "---")
	for _, l := range resp.Bids {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t\n", l.Price, l.Quantity, l.OrderCount, green("BID"))
	}
	return w.Flush()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tradesim-client [-addr host:port] [-account name] <command> [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  products")
	fmt.Fprintln(w, "  buy <product> <quantity> <price> [-expiry GTC|FOK] [-account a]")
	fmt.Fprintln(w, "  sell <product> <quantity> <price> [-expiry GTC|FOK] [-account a]")
	fmt.Fprintln(w, "  cancel <order_id>")
	fmt.Fprintln(w, "  order <order_id>")
	fmt.Fprintln(w, "  book <product> [-depth n] [-watch]")
	fmt.Fprintln(w, "  owned <product>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  buy AAPL 10 101.5")
	fmt.Fprintln(w, "  sell AAPL 5 102 -expiry FOK -account alice")
	fmt.Fprintln(w, "  book AAPL -watch")
}
