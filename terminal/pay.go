package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"kasir/m/domain"
	"kasir/m/internal/cashier"
	"kasir/m/internal/checkout"
)

// pay runs the checkout prompt for the current cart. The cart is cleared only when the sale commits.
func (t *terminal) pay(ctx context.Context) error {
	co, err := t.session.StartCheckout()
	if err != nil {
		return err
	}
	defer func() {
		if err := t.session.FinishCheckout(ctx, co); err != nil {
			t.notify(cashier.Failure, cashier.Describe(err))
		}
	}()

	t.showCart()
	for co.State() == checkout.Editing {
		t.showQuote(co)
		line, ok := t.prompt("pay [promo CODE | nopromo | method M | paid N | exact | quick I | notes TEXT | ok | cancel] > ")
		if !ok {
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		arg := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

		var err error
		switch fields[0] {
		case "promo":
			var quote domain.DiscountQuote
			if quote, err = co.ApplyPromo(ctx, arg); err == nil {
				t.notify(cashier.Success, fmt.Sprintf("%s applied, %s off", quote.Discount.Name, domain.Rupiah(quote.DiscountAmount)))
			}
		case "nopromo":
			co.RemovePromo()
		case "method":
			err = co.SetMethod(domain.PaymentMethod(strings.ToLower(arg)))
		case "paid":
			co.SetPaid(arg)
		case "exact":
			co.PayExact()
		case "quick":
			err = quickPay(co, arg)
		case "notes":
			co.SetNotes(arg)
		case "ok", "confirm":
			var receipt domain.Receipt
			if receipt, err = co.Confirm(ctx); err == nil {
				t.showReceipt(receipt)
			}
		case "cancel":
			t.notify(cashier.Info, "Checkout cancelled, cart kept")
			return nil
		default:
			err = fmt.Errorf("unknown pay command %q", fields[0])
		}
		if err != nil {
			t.notify(cashier.Failure, describePayment(err))
		}
	}
	return nil
}

func quickPay(co *checkout.Checkout, arg string) error {
	i, err := strconv.Atoi(arg)
	if err != nil || i < 1 || i > len(checkout.QuickPayAmounts) {
		return fmt.Errorf("choose a quick amount between 1 and %d", len(checkout.QuickPayAmounts))
	}
	co.SetPaid(strconv.FormatInt(checkout.QuickPayAmounts[i-1], 10))
	return nil
}

func describePayment(err error) string {
	switch {
	case errors.Is(err, checkout.ErrCannotPay):
		return "Paid amount does not cover the total"
	case errors.Is(err, checkout.ErrInFlight):
		return "Payment is already being processed"
	case errors.Is(err, checkout.ErrEmptyCode):
		return "Enter a promo code"
	case errors.Is(err, checkout.ErrInvalidMode):
		return "Payment method must be cash, qris, debit or credit"
	}
	return cashier.Describe(err)
}

func (t *terminal) showQuote(co *checkout.Checkout) {
	q := co.Quote()
	t.printf("Subtotal %s\n", domain.Rupiah(q.Subtotal))
	if d := co.Discount(); d != nil {
		t.printf("Discount %s (%s)\n", domain.Rupiah(q.DiscountAmount), d.Code)
	}
	t.printf("Total    %s   method %s\n", domain.Rupiah(q.Total), co.Method())
	if co.Method() != domain.PaymentCash {
		return
	}
	quick := make([]string, len(checkout.QuickPayAmounts))
	for i, amount := range checkout.QuickPayAmounts {
		quick[i] = fmt.Sprintf("%d=%s", i+1, domain.Rupiah(amount))
	}
	t.printf("Quick    %s\n", strings.Join(quick, "  "))
	switch {
	case q.Paid == 0:
		t.printf("Paid     -\n")
	case q.CanPay:
		t.printf("Paid     %s   change %s\n", domain.Rupiah(q.Paid), domain.Rupiah(q.Change))
	default:
		t.printf("Paid     %s   short by %s\n", domain.Rupiah(q.Paid), domain.Rupiah(q.Shortfall))
	}
}

func (t *terminal) showReceipt(r domain.Receipt) {
	t.printf("\nTransaction #%d  %s\n", r.ID, r.CreatedAt)
	if r.UserName != nil {
		t.printf("Cashier  %s\n", *r.UserName)
	}
	for _, item := range r.Items {
		t.printf("  %-28s %3d x %10s = %12s\n", item.ProductName, item.Quantity, domain.Rupiah(item.Price), domain.Rupiah(item.Subtotal))
	}
	t.printf("Subtotal %s\n", domain.Rupiah(r.Subtotal))
	if r.DiscountAmount > 0 {
		code := ""
		if r.DiscountCode != nil {
			code = " (" + *r.DiscountCode + ")"
		}
		t.printf("Discount %s%s\n", domain.Rupiah(r.DiscountAmount), code)
	}
	t.printf("Total    %s\nPaid     %s (%s)\nChange   %s\n\n", domain.Rupiah(r.Total), domain.Rupiah(r.Paid), r.PaymentMethod, domain.Rupiah(r.Change))
}
