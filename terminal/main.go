// Command terminal is the cashier's keyboard-driven point-of-sale front end.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"kasir/m/domain"
	"kasir/m/internal/barcodes"
	"kasir/m/internal/cashier"
	"kasir/m/internal/client"
	"kasir/m/internal/config"
	"kasir/m/internal/logging"
	"kasir/m/internal/scan"
)

const logFile = "kasir-terminal.log"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kasir:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Env, logFile)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	api := client.New(cfg.APIURL,
		client.WithLogger(logger),
		client.WithHTTPClient(&http.Client{Timeout: 15 * time.Second}),
	)
	t := newTerminal(cfg, api, os.Stdout, logger)

	user, err := t.login(ctx, os.Stdin)
	if err != nil {
		return err
	}
	t.user = user
	t.in = newInput(os.Stdin)
	t.lines = bufio.NewScanner(t.in.Reader(nil))

	t.printf("Logged in as %s (%s)\n", user.FullName, user.Role)
	if err := t.session.RefreshProducts(ctx); err != nil {
		return fmt.Errorf("load products: %s", cashier.Describe(err))
	}
	t.printf("%d products loaded. Type :help for commands.\n", len(t.session.Products()))
	return t.loop(ctx)
}

// console serializes writes from the prompt loop and from scan handlers running in background.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

// printf translates newlines so output stays aligned while the terminal is in raw mode.
func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text := fmt.Sprintf(format, args...)
	fmt.Fprint(c.out, strings.ReplaceAll(text, "\n", "\r\n"))
}

func (c *console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

type terminal struct {
	*console
	cfg      config.Config
	api      *client.Client
	logger   *zap.Logger
	session  *cashier.Session
	keyboard *scan.Keyboard
	camera   *scan.Zbar
	switcher *scan.Switcher
	user     domain.User

	in    *input
	lines *bufio.Scanner

	// stopped receives a value when a scan mode ends on its own.
	stopped chan struct{}
}

func newTerminal(cfg config.Config, api *client.Client, out io.Writer, logger *zap.Logger) *terminal {
	t := &terminal{
		console:  &console{out: out},
		cfg:      cfg,
		api:      api,
		logger:   logger,
		keyboard: scan.NewKeyboard(),
		camera:   &scan.Zbar{Binary: cfg.CameraBinary},
		stopped:  make(chan struct{}, 1),
	}
	t.session = cashier.New(api,
		cashier.WithNotifier(cashier.NotifierFunc(t.notify)),
		cashier.WithBeeper(scan.BellBeeper{W: t.console}),
		cashier.WithLogger(logger),
	)
	t.switcher = scan.NewSwitcher(map[scan.Mode]scan.StartFunc{
		scan.ModeCamera: scan.CameraStarter(t.camera, t.session.Dispatcher(), scan.WithCameraLogger(logger)),
		scan.ModeUSB:    scan.USBStarter(t.keyboard, t.session.Dispatcher()),
	}, t.modeStopped)
	return t
}

func (t *terminal) notify(level cashier.Level, msg string) {
	prefix := "  "
	switch level {
	case cashier.Success:
		prefix = "+ "
	case cashier.Failure:
		prefix = "! "
	}
	t.printf("%s%s\n", prefix, msg)
}

func (t *terminal) modeStopped(mode scan.Mode, err error) {
	var failure *scan.Failure
	switch {
	case errors.As(err, &failure):
		t.notify(cashier.Failure, failure.Message())
	case err != nil:
		t.notify(cashier.Failure, err.Error())
	}
	t.logger.Info("scan mode stopped", zap.Stringer("mode", mode), zap.Error(err))
	select {
	case t.stopped <- struct{}{}:
	default:
	}
}

// login uses KASIR_USERNAME and KASIR_PASSWORD when set and prompts otherwise.
func (t *terminal) login(ctx context.Context, stdin *os.File) (domain.User, error) {
	username, password := t.cfg.Username, t.cfg.Password
	for attempt := 0; attempt < 3; attempt++ {
		if username == "" {
			t.printf("Username: ")
			line, err := readRawLine(stdin)
			if err != nil {
				return domain.User{}, err
			}
			username = strings.TrimSpace(line)
		}
		if password == "" {
			t.printf("Password: ")
			secret, err := readPassword(stdin)
			if err != nil {
				return domain.User{}, err
			}
			t.printf("\n")
			password = secret
		}
		user, err := t.api.Login(ctx, username, password)
		if err == nil {
			return user, nil
		}
		t.notify(cashier.Failure, "Login failed: "+cashier.Describe(err))
		if errors.Is(err, client.ErrTransport) {
			return domain.User{}, err
		}
		username, password = "", ""
	}
	return domain.User{}, errors.New("too many failed login attempts")
}

// readRawLine reads byte by byte so nothing past the newline is consumed before the input pump starts.
func readRawLine(r io.Reader) (string, error) {
	var b strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				return strings.TrimRight(b.String(), "\r"), nil
			}
			b.WriteByte(buf[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) && b.Len() > 0 {
				return b.String(), nil
			}
			return "", err
		}
	}
}

func readPassword(f *os.File) (string, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return readRawLine(f)
	}
	secret, err := term.ReadPassword(fd)
	return string(secret), err
}

func (t *terminal) prompt(label string) (string, bool) {
	t.printf("%s", label)
	if !t.lines.Scan() {
		return "", false
	}
	return strings.TrimSpace(t.lines.Text()), true
}

func (t *terminal) loop(ctx context.Context) error {
	defer t.switcher.Close()
	for {
		line, ok := t.prompt(fmt.Sprintf("[%d item(s) %s] > ", t.session.Cart().Count(), domain.Rupiah(t.session.Cart().Total())))
		if !ok {
			return t.lines.Err()
		}
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, ":") {
			t.session.ManualEntry(ctx, line)
			continue
		}

		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		var err error
		switch cmd {
		case ":help", ":h":
			t.help()
		case ":quit", ":q":
			if !t.session.Cart().Empty() {
				if answer, _ := t.prompt("Cart is not empty. Quit anyway? [y/N] "); !strings.EqualFold(answer, "y") {
					continue
				}
			}
			return nil
		case ":products", ":p":
			t.listProducts(strings.Join(args, " "))
		case ":categories":
			t.printf("%s\n", strings.Join(t.session.Categories(), ", "))
		case ":refresh":
			err = t.session.RefreshProducts(ctx)
		case ":add":
			var id int64
			if id, err = argID(args, 0); err == nil {
				_ = t.session.AddProduct(id)
			}
		case ":qty":
			err = t.quantity(args)
		case ":rm":
			var id int64
			if id, err = argID(args, 0); err == nil {
				t.session.Cart().Remove(id)
			}
		case ":clear":
			t.session.Cart().Clear()
			t.notify(cashier.Info, "Cart cleared")
		case ":cart", ":c":
			t.showCart()
		case ":pay":
			err = t.pay(ctx)
		case ":usb":
			err = t.rawMode(ctx, func() error { return t.switcher.Activate(ctx, scan.ModeUSB) }, t.switcher.Deactivate)
		case ":cam":
			err = t.cameraMode(ctx, func() error { return t.switcher.Activate(ctx, scan.ModeCamera) }, t.switcher.Deactivate)
		case ":alias":
			err = t.alias(ctx, args)
		case ":history":
			err = t.history(ctx, args)
		default:
			t.notify(cashier.Failure, "Unknown command "+cmd+". Type :help for commands.")
		}
		if err != nil {
			t.notify(cashier.Failure, cashier.Describe(err))
		}
	}
}

func (t *terminal) help() {
	t.printf(`Commands:
  <code>              scan a barcode typed by hand
  :products [text]    list products, optionally filtered by name or barcode
  :categories         list product categories
  :add ID             add one unit of a product
  :qty ID N           set a quantity (N) or change it (+N / -N)
  :rm ID              remove a line
  :clear              empty the cart
  :cart               show the cart
  :pay                check out
  :usb                read a USB barcode scanner until Esc
  :cam                scan with the camera until Enter
  :alias ID           add alternative barcodes to a product (admin)
  :history [N]        show the last N transactions
  :refresh            reload products
  :quit               exit
`)
}

func argID(args []string, i int) (int64, error) {
	if len(args) <= i {
		return 0, errors.New("missing product id")
	}
	id, err := strconv.ParseInt(args[i], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[i])
	}
	return id, nil
}

func (t *terminal) quantity(args []string) error {
	id, err := argID(args, 0)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return errors.New("usage: :qty ID N")
	}
	n, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid quantity %q", args[1])
	}
	if strings.HasPrefix(args[1], "+") || strings.HasPrefix(args[1], "-") {
		_ = t.session.UpdateQuantity(id, n)
		return nil
	}
	_ = t.session.SetQuantity(id, n)
	return nil
}

func (t *terminal) listProducts(query string) {
	products := t.session.Search(query, cashier.AllCategories)
	if len(products) == 0 {
		t.printf("No products found\n")
		return
	}
	for _, p := range products {
		warn := ""
		switch {
		case p.Stock <= 0:
			warn = "  out of stock"
		case p.Stock <= cashier.LowStockThreshold:
			warn = "  low stock"
		}
		t.printf("%4d  %s %-28s %12s  stock %d%s\n", p.ID, p.Emoji, p.Name, domain.Rupiah(p.Price), p.Stock, warn)
	}
}

func (t *terminal) showCart() {
	c := t.session.Cart()
	if c.Empty() {
		t.printf("Cart is empty\n")
		return
	}
	for _, l := range c.Lines() {
		t.printf("%4d  %-28s %3d x %10s = %12s\n", l.ID, l.Name, l.Quantity, domain.Rupiah(l.Price), domain.Rupiah(l.Subtotal()))
	}
	t.printf("%d item(s), total %s\n", c.Count(), domain.Rupiah(c.Total()))
}

// rawMode puts the terminal in raw mode and feeds keystrokes to the keyboard until the active
// scan mode exits on Escape.
func (t *terminal) rawMode(ctx context.Context, activate func() error, deactivate func() error) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("USB scanner mode needs an interactive terminal")
	}
	t.drainStopped()
	if err := activate(); err != nil {
		return err
	}
	defer deactivate()

	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(fd, state)

	t.printf("USB scanner active. Scan barcodes; press Esc to finish.\n")
	kbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-t.stopped:
			cancel()
		case <-kbCtx.Done():
		}
	}()
	if err := t.keyboard.Run(kbCtx, t.in.Reader(kbCtx.Done())); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	t.printf("USB scanner off\n")
	return nil
}

// cameraMode runs the camera until the cashier presses Enter or the camera stops by itself.
func (t *terminal) cameraMode(ctx context.Context, activate func() error, deactivate func() error) error {
	t.drainStopped()
	if err := activate(); err != nil {
		var failure *scan.Failure
		if errors.As(err, &failure) {
			return errors.New(failure.Message())
		}
		return err
	}
	defer deactivate()
	t.printf("Camera active. Press Enter to stop.\n")
	t.prompt("")
	t.printf("Camera off\n")
	return nil
}

func (t *terminal) drainStopped() {
	select {
	case <-t.stopped:
	default:
	}
}

func (t *terminal) alias(ctx context.Context, args []string) error {
	if t.user.Role != domain.RoleAdmin {
		return errors.New("only admins can manage barcodes")
	}
	id, err := argID(args, 0)
	if err != nil {
		return err
	}
	product, err := t.api.Product(ctx, id)
	if err != nil {
		return err
	}

	assigner := barcodes.New(t.api,
		barcodes.WithCamera(t.camera),
		barcodes.WithKeyboard(t.keyboard),
		barcodes.WithBeeper(scan.BellBeeper{W: t.console}),
		barcodes.WithLogger(t.logger),
		barcodes.WithReport(func(code string, err error) {
			if err != nil {
				t.notify(cashier.Failure, code+": "+cashier.Describe(err))
				return
			}
			t.notify(cashier.Success, code+" added")
		}),
		barcodes.WithStopHandler(t.modeStopped),
	)
	defer assigner.Close()
	if err := assigner.Open(ctx, product); err != nil {
		return err
	}

	for {
		t.printf("%s %s\n", product.Emoji, product.Name)
		for _, b := range assigner.Barcodes() {
			switch {
			case b.IsPrimary:
				t.printf("       %-20s primary\n", b.Barcode)
			case b.ID != nil:
				t.printf("  %4d %-20s %s\n", *b.ID, b.Barcode, b.Description)
			}
		}
		line, ok := t.prompt("alias [usb | cam | add CODE [DESC] | del ID | done] > ")
		if !ok {
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		var err error
		switch fields[0] {
		case "done", "q":
			if n := len(assigner.Scanned()); n > 0 {
				t.notify(cashier.Success, fmt.Sprintf("%d barcode(s) added by scanning", n))
			}
			return t.session.RefreshProducts(ctx)
		case "usb":
			err = t.rawMode(ctx, func() error { return assigner.Activate(ctx, scan.ModeUSB) }, func() error { return assigner.Activate(ctx, scan.ModeOff) })
		case "cam":
			err = t.cameraMode(ctx, func() error { return assigner.Activate(ctx, scan.ModeCamera) }, func() error { return assigner.Activate(ctx, scan.ModeOff) })
		case "add":
			if len(fields) < 2 {
				err = errors.New("usage: add CODE [DESCRIPTION]")
				break
			}
			_, err = assigner.Add(ctx, fields[1], strings.Join(fields[2:], " "))
		case "del":
			var barcodeID int64
			if barcodeID, err = argID(fields, 1); err == nil {
				err = assigner.Delete(ctx, barcodeID)
			}
		default:
			err = fmt.Errorf("unknown alias command %q", fields[0])
		}
		if err != nil {
			t.notify(cashier.Failure, cashier.Describe(err))
		}
	}
}

func (t *terminal) history(ctx context.Context, args []string) error {
	filter := client.TransactionFilter{Limit: 10}
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid count %q", args[0])
		}
		filter.Limit = n
	}
	receipts, err := t.api.Transactions(ctx, filter)
	if err != nil {
		return err
	}
	if len(receipts) == 0 {
		t.printf("No transactions yet\n")
	}
	for _, r := range receipts {
		t.printf("#%-5d %s  %-6s %12s  %d line(s)\n", r.ID, r.CreatedAt, r.PaymentMethod, domain.Rupiah(r.Total), len(r.Items))
	}
	return nil
}
