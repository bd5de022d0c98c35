// Package barcodes assigns alias barcodes to a product by scanning units in bulk.
package barcodes

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"kasir/m/domain"
	"kasir/m/internal/scan"
)

// BatchDescription is stored on aliases created by scanning.
const BatchDescription = "batch scan"

var ErrNoProduct = errors.New("no product selected")

type API interface {
	Barcodes(ctx context.Context, productID int64) ([]domain.Barcode, error)
	AddBarcode(ctx context.Context, productID int64, code, description string) (domain.Barcode, error)
	DeleteBarcode(ctx context.Context, productID, barcodeID int64) error
}

// Assigner manages the barcodes of one product at a time. Scans arriving from the camera or a USB
// scanner become aliases of the open product.
type Assigner struct {
	api        API
	beeper     scan.Beeper
	logger     *zap.Logger
	report     func(code string, err error)
	dispatcher *scan.Dispatcher
	switcher   *scan.Switcher

	mu       sync.Mutex
	product  *domain.Product
	barcodes []domain.Barcode
	scanned  []string
}

type Option func(*options)

type options struct {
	camera   scan.Camera
	keyboard *scan.Keyboard
	beeper   scan.Beeper
	logger   *zap.Logger
	report   func(code string, err error)
	onStop   func(mode scan.Mode, err error)
}

// WithCamera enables scan.ModeCamera.
func WithCamera(cam scan.Camera) Option {
	return func(o *options) { o.camera = cam }
}

// WithKeyboard enables scan.ModeUSB.
func WithKeyboard(kb *scan.Keyboard) Option {
	return func(o *options) { o.keyboard = kb }
}

func WithBeeper(b scan.Beeper) Option {
	return func(o *options) { o.beeper = b }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithReport receives the outcome of every scanned alias.
func WithReport(fn func(code string, err error)) Option {
	return func(o *options) { o.report = fn }
}

// WithStopHandler is told when a scan mode ends on its own.
func WithStopHandler(fn func(mode scan.Mode, err error)) Option {
	return func(o *options) { o.onStop = fn }
}

func New(api API, opts ...Option) *Assigner {
	o := options{beeper: scan.NopBeeper{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &Assigner{api: api, beeper: o.beeper, logger: o.logger, report: o.report}

	// One batch tracker shared by both sources: the same unit seen by camera then USB is one scan.
	batch := scan.NewDebouncer(scan.BatchWindow)
	a.dispatcher = scan.NewDispatcher(a.HandleScan,
		scan.WithFilter(domain.SourceCamera, scan.Chain(scan.NewDebouncer(scan.CameraWindow), batch)),
		scan.WithFilter(domain.SourceUSB, batch),
		scan.WithBeeper(scan.NopBeeper{}),
		scan.WithLogger(o.logger),
	)

	starters := map[scan.Mode]scan.StartFunc{}
	if o.camera != nil {
		starters[scan.ModeCamera] = scan.CameraStarter(o.camera, a.dispatcher, scan.WithCameraLogger(o.logger))
	}
	if o.keyboard != nil {
		starters[scan.ModeUSB] = scan.USBStarter(o.keyboard, a.dispatcher)
	}
	a.switcher = scan.NewSwitcher(starters, o.onStop)
	return a
}

// Dispatcher accepts scans for the open product.
func (a *Assigner) Dispatcher() *scan.Dispatcher { return a.dispatcher }

// Open selects product, stopping any scan mode left from the previous one, and loads its barcodes.
func (a *Assigner) Open(ctx context.Context, product domain.Product) error {
	if err := a.switcher.Deactivate(); err != nil {
		a.logger.Warn("release scanner", zap.Error(err))
	}
	a.mu.Lock()
	a.product = &product
	a.barcodes = nil
	a.scanned = nil
	a.mu.Unlock()
	return a.reload(ctx, product.ID)
}

func (a *Assigner) reload(ctx context.Context, productID int64) error {
	codes, err := a.api.Barcodes(ctx, productID)
	if err != nil {
		return err
	}
	a.mu.Lock()
	if a.product != nil && a.product.ID == productID {
		a.barcodes = codes
	}
	a.mu.Unlock()
	return nil
}

func (a *Assigner) current() (domain.Product, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.product == nil {
		return domain.Product{}, false
	}
	return *a.product, true
}

// HandleScan stores ev.Code as an alias of the open product.
func (a *Assigner) HandleScan(ctx context.Context, ev domain.ScanEvent) {
	p, ok := a.current()
	if !ok {
		return
	}
	_, err := a.api.AddBarcode(ctx, p.ID, ev.Code, BatchDescription)
	if err != nil {
		a.logger.Info("alias rejected", zap.Int64("product_id", p.ID), zap.String("code", ev.Code), zap.Error(err))
		scan.Play(a.beeper, scan.ToneRejected)
		a.notify(ev.Code, err)
		return
	}

	a.mu.Lock()
	a.scanned = append(a.scanned, ev.Code)
	a.mu.Unlock()
	if err := a.reload(ctx, p.ID); err != nil {
		a.logger.Warn("reload barcodes", zap.Int64("product_id", p.ID), zap.Error(err))
	}
	scan.Play(a.beeper, scan.ToneAdded)
	a.notify(ev.Code, nil)
}

func (a *Assigner) notify(code string, err error) {
	if a.report != nil {
		a.report(code, err)
	}
}

// Add stores a typed alias with an optional description.
func (a *Assigner) Add(ctx context.Context, code, description string) (domain.Barcode, error) {
	p, ok := a.current()
	if !ok {
		return domain.Barcode{}, ErrNoProduct
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Barcode{}, errors.New("barcode is required")
	}
	b, err := a.api.AddBarcode(ctx, p.ID, code, strings.TrimSpace(description))
	if err != nil {
		return domain.Barcode{}, err
	}
	return b, a.reload(ctx, p.ID)
}

// Delete removes an alias. Primary barcodes have no id and cannot be removed here.
func (a *Assigner) Delete(ctx context.Context, barcodeID int64) error {
	p, ok := a.current()
	if !ok {
		return ErrNoProduct
	}
	if err := a.api.DeleteBarcode(ctx, p.ID, barcodeID); err != nil {
		return err
	}
	return a.reload(ctx, p.ID)
}

// Activate switches the scan mode; only one of camera and USB runs at a time.
func (a *Assigner) Activate(ctx context.Context, mode scan.Mode) error {
	if _, ok := a.current(); !ok && mode != scan.ModeOff {
		return ErrNoProduct
	}
	return a.switcher.Activate(ctx, mode)
}

func (a *Assigner) Toggle(ctx context.Context, mode scan.Mode) error {
	if _, ok := a.current(); !ok {
		return ErrNoProduct
	}
	return a.switcher.Toggle(ctx, mode)
}

func (a *Assigner) Mode() scan.Mode { return a.switcher.Mode() }

func (a *Assigner) Barcodes() []domain.Barcode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Barcode(nil), a.barcodes...)
}

// Scanned lists the aliases added by scanning since Open.
func (a *Assigner) Scanned() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.scanned...)
}

// Close releases any scanner and forgets the product. Later scans are ignored.
func (a *Assigner) Close() error {
	err := a.switcher.Close()
	a.mu.Lock()
	a.product = nil
	a.barcodes = nil
	a.mu.Unlock()
	return err
}
