package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/apiclient"
	"github.com/mmeshcher/storefront/internal/cart"
	"github.com/mmeshcher/storefront/internal/checkout"
	"github.com/mmeshcher/storefront/internal/clientcache"
	"github.com/mmeshcher/storefront/internal/config"
	"github.com/mmeshcher/storefront/internal/model"
)

const defaultTheme = "light"

var errUsage = errors.New("invalid arguments, see -h")

type app struct {
	cfg    *config.ClientConfig
	cache  clientcache.Cache
	api    *apiclient.Client
	cart   *cart.Cart
	queue  *checkout.FallbackQueue
	logger *zap.Logger
	out    io.Writer
	user   *clientcache.CurrentUser
}

func newApp(ctx context.Context, cfg *config.ClientConfig, cache clientcache.Cache, api *apiclient.Client, logger *zap.Logger, out io.Writer) (*app, error) {
	c, err := cart.Load(ctx, cache)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		cache:  cache,
		api:    api,
		cart:   c,
		queue:  checkout.NewFallbackQueue(cache),
		logger: logger,
		out:    out,
	}

	user, ok, err := clientcache.Load(ctx, cache, clientcache.CurrentUserKey)
	if err != nil {
		return nil, err
	}
	if ok {
		a.user = &user
		api.SetToken(user.Token)
	}
	return a, nil
}

func (a *app) run(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "cart":
		return a.cartCmd(ctx, rest)
	case "register":
		if len(rest) != 3 {
			return errUsage
		}
		if _, err := a.api.Register(ctx, rest[0], rest[1], rest[2]); err != nil {
			return err
		}
		return a.remember(ctx)
	case "login":
		if len(rest) != 2 {
			return errUsage
		}
		if _, err := a.api.Login(ctx, rest[0], rest[1]); err != nil {
			return err
		}
		return a.remember(ctx)
	case "login-google":
		if len(rest) != 1 {
			return errUsage
		}
		if _, err := a.api.FederatedLogin(ctx, rest[0]); err != nil {
			return err
		}
		return a.remember(ctx)
	case "logout":
		a.api.SetToken("")
		a.user = nil
		return clientcache.Clear(ctx, a.cache, clientcache.CurrentUserKey)
	case "otp":
		return a.otpCmd(ctx, rest)
	case "checkout":
		return a.checkoutCmd(ctx, rest)
	case "orders":
		return a.ordersCmd(ctx)
	case "sync":
		n, err := a.queue.Reconcile(ctx, a.api)
		fmt.Fprintf(a.out, "submitted %d queued order(s)\n", n)
		return err
	case "theme":
		return a.themeCmd(ctx, rest)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) cartCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "add":
		if len(args) < 4 {
			return errUsage
		}
		price, err := decimal.NewFromString(args[3])
		if err != nil {
			return fmt.Errorf("%w: price: %v", model.ErrValidation, err)
		}
		variants, err := parseVariants(args[4:])
		if err != nil {
			return err
		}
		if err := a.cart.Add(ctx, cart.Product{ID: args[1], Name: args[2], Price: price}, variants); err != nil {
			return err
		}
	case "remove":
		if len(args) < 2 {
			return errUsage
		}
		variants, err := parseVariants(args[2:])
		if err != nil {
			return err
		}
		if err := a.cart.Remove(ctx, cart.LineKey(args[1], variants)); err != nil {
			return err
		}
	case "qty":
		if len(args) < 3 {
			return errUsage
		}
		delta, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("%w: delta: %v", model.ErrValidation, err)
		}
		variants, err := parseVariants(args[3:])
		if err != nil {
			return err
		}
		if err := a.cart.SetQuantity(ctx, cart.LineKey(args[1], variants), delta); err != nil {
			return err
		}
	case "clear":
		if err := a.cart.Clear(ctx); err != nil {
			return err
		}
	case "show":
	default:
		return errUsage
	}

	a.printCart()
	return nil
}

func (a *app) printCart() {
	items := a.cart.Items()
	if len(items) == 0 {
		fmt.Fprintln(a.out, "cart is empty")
		return
	}
	for _, it := range items {
		fmt.Fprintf(a.out, "%-40s x%d  %s\n", cart.KeyOf(it), it.Quantity, it.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(a.out, "total: %s (%d item(s))\n", a.cart.Total().StringFixed(2), a.cart.Count())
}

func (a *app) otpCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "send":
		if len(args) != 2 {
			return errUsage
		}
		if err := a.api.SendOTP(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "code sent")
		return nil
	case "verify":
		if len(args) != 3 && len(args) != 4 {
			return errUsage
		}
		name := ""
		if len(args) == 4 {
			name = args[3]
		}
		resp, err := a.api.VerifyOTP(ctx, args[1], args[2], name)
		if err != nil {
			return err
		}
		return a.save(ctx, clientcache.CurrentUser{Token: resp.Token, Identity: resp.User})
	default:
		return errUsage
	}
}

// remember сохраняет снимок учётной записи после входа.
func (a *app) remember(ctx context.Context) error {
	identity, err := a.api.Profile(ctx)
	if err != nil {
		return err
	}
	return a.save(ctx, clientcache.CurrentUser{Token: a.api.Token(), Identity: *identity})
}

func (a *app) save(ctx context.Context, user clientcache.CurrentUser) error {
	if err := clientcache.Save(ctx, a.cache, clientcache.CurrentUserKey, user); err != nil {
		return err
	}
	a.user = &user
	fmt.Fprintf(a.out, "signed in as %s <%s>\n", user.Identity.Name, user.Identity.Email)
	return nil
}

func (a *app) checkoutCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	fs.SetOutput(a.out)
	var addr model.ShippingAddress
	fs.StringVar(&addr.Name, "name", "", "recipient name")
	fs.StringVar(&addr.Email, "email", "", "contact email")
	fs.StringVar(&addr.Phone, "phone", "", "contact phone")
	fs.StringVar(&addr.Address, "address", "", "street address")
	fs.StringVar(&addr.City, "city", "", "city")
	pay := fs.String("pay", string(model.PaymentCOD), "payment method: UPI or COD")
	utr := fs.String("utr", "", "UPI transaction reference")
	qrPath := fs.String("qr", "", "write the UPI payment QR code to this PNG file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if a.user != nil && addr.Email == "" {
		addr.Email = a.user.Identity.Email
	}
	if a.user != nil && addr.Name == "" {
		addr.Name = a.user.Identity.Name
	}

	writer := &checkout.TieredWriter{
		Primary:  checkout.NewRemoteWriter(a.api),
		Fallback: a.queue,
		Logger:   a.logger,
	}
	merchant := checkout.Merchant{VPA: a.cfg.MerchantUPIID, Name: a.cfg.MerchantName}
	o := checkout.New(a.cart, writer, merchant, a.logger)

	userID := ""
	if a.user != nil {
		userID = a.user.Identity.ID.String()
	}
	if err := o.Begin(userID); err != nil {
		return err
	}
	if err := o.SubmitShipping(addr); err != nil {
		return err
	}

	method := model.PaymentMethod(strings.ToUpper(*pay))
	if method == model.PaymentUPI {
		intent, err := o.PaymentIntent()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "pay %s INR: %s\n", intent.Amount.StringFixed(2), intent.URI)
		if *qrPath != "" {
			if err := os.WriteFile(*qrPath, intent.QRCodePNG, 0o644); err != nil {
				return fmt.Errorf("write qr code: %w", err)
			}
			fmt.Fprintf(a.out, "qr code written to %s\n", *qrPath)
		}
		if *utr == "" {
			o.Cancel()
			fmt.Fprintln(a.out, "rerun checkout with -utr once the payment is done")
			return nil
		}
	}

	res, err := o.PlaceOrder(ctx, method, *utr)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "order %s placed, total %s, status %s\n",
		res.Order.ID, res.Order.TotalAmount.StringFixed(2), res.Order.Status)
	if res.Tier == checkout.TierFallback {
		fmt.Fprintln(a.out, "the API is unavailable, the order is saved locally; run sync later")
	}
	return nil
}

func (a *app) ordersCmd(ctx context.Context) error {
	pending, err := a.queue.Pending(ctx)
	if err != nil {
		return err
	}
	for _, o := range pending {
		fmt.Fprintf(a.out, "%s  %s  %s  queued locally\n", o.ID, o.CreatedAt.Format("2006-01-02 15:04"), o.TotalAmount.StringFixed(2))
	}

	if a.user == nil {
		return nil
	}
	orders, err := a.api.ListOrders(ctx)
	if err != nil {
		return err
	}
	if len(orders) == 0 && len(pending) == 0 {
		fmt.Fprintln(a.out, "no orders yet")
	}
	for _, o := range orders {
		fmt.Fprintf(a.out, "%s  %s  %s  %s\n", o.ID, o.CreatedAt.Format("2006-01-02 15:04"), o.TotalAmount.StringFixed(2), o.Status)
	}
	return nil
}

func (a *app) themeCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		theme, ok, err := clientcache.Load(ctx, a.cache, clientcache.ThemeKey)
		if err != nil {
			return err
		}
		if !ok {
			theme = defaultTheme
		}
		fmt.Fprintln(a.out, theme)
		return nil
	}

	switch args[0] {
	case "light", "dark":
		return clientcache.Save(ctx, a.cache, clientcache.ThemeKey, args[0])
	default:
		return fmt.Errorf("%w: theme must be light or dark", model.ErrValidation)
	}
}

func parseVariants(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	variants := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: variant %q must look like name=value", model.ErrValidation, arg)
		}
		variants[k] = v
	}
	return variants, nil
}
