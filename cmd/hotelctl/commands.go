package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/staybook/hotel-server-go/internal/directory"
	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/favorites"
	"github.com/staybook/hotel-server-go/internal/model"
	"github.com/staybook/hotel-server-go/internal/reservations"
)

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "hotels":
		return a.hotels(ctx)
	case "hotel":
		return a.hotel(ctx, args)
	case "rooms":
		return a.rooms(ctx, args)
	case "register":
		return a.register(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.provider.SignOut(ctx)
	case "whoami":
		return a.whoami()
	case "favorites":
		return a.listFavorites(ctx)
	case "fav":
		return a.fav(ctx, args)
	case "reserve":
		return a.reserve(ctx, args)
	case "reservations":
		return a.reservations(ctx)
	case "cancel":
		return a.cancel(ctx, args)
	case "watch":
		return a.watch(ctx)
	default:
		return usageError(fmt.Sprintf("unknown command %q", command))
	}
}

// loadFavorites fills the favorite set for the current session. Guests get an
// empty set without a store call.
func (a *app) loadFavorites(ctx context.Context) (favorites.Set, error) {
	return a.favorites.LoadForSession(ctx, a.provider.Current())
}

func (a *app) hotels(ctx context.Context) error {
	hotels, err := a.directory.ListHotels(ctx)
	if err != nil {
		return err
	}
	set, err := a.loadFavorites(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("favorites unavailable")
	}
	printHotels(a.out, hotels, set)
	return nil
}

func (a *app) hotel(ctx context.Context, args []string) error {
	id, err := oneArg(args, "hotel id")
	if err != nil {
		return err
	}
	h, err := a.directory.GetHotel(ctx, id)
	if err != nil {
		return err
	}
	set, err := a.loadFavorites(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("favorites unavailable")
	}

	fmt.Fprintf(a.out, "%s%s\n", h.Name, favoriteMark(set, h.ID))
	fmt.Fprintf(a.out, "  location: %s\n", h.Location)
	fmt.Fprintf(a.out, "  rating:   %.1f\n", h.Rating)
	if h.Price > 0 {
		fmt.Fprintf(a.out, "  price:    %.0f / night\n", h.Price)
	}
	if h.Description != "" {
		fmt.Fprintf(a.out, "\n%s\n", h.Description)
	}
	return nil
}

func (a *app) rooms(ctx context.Context, args []string) error {
	id, err := oneArg(args, "hotel id")
	if err != nil {
		return err
	}
	if _, err := a.directory.GetHotel(ctx, id); err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROOM\tCAPACITY\tPRICE")
	for _, r := range directory.Rooms(id) {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.0f\n", r.ID, r.Name, r.Capacity, r.Price)
	}
	return w.Flush()
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password, at least 6 characters")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	sess, err := a.provider.Register(ctx, *email, *password, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "registered and signed in as %s\n", sess.Email)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	sess, err := a.provider.SignIn(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "signed in as %s\n", sess.Email)
	return nil
}

func (a *app) whoami() error {
	sess := a.provider.Current()
	if sess == nil {
		fmt.Fprintln(a.out, "guest")
		return nil
	}
	fmt.Fprintf(a.out, "%s <%s>\n", sess.DisplayName, sess.Email)
	return nil
}

func (a *app) listFavorites(ctx context.Context) error {
	if a.provider.Current() == nil {
		return apperrors.AuthenticationRequired()
	}
	set, err := a.loadFavorites(ctx)
	if err != nil {
		return err
	}
	if set.Len() == 0 {
		fmt.Fprintln(a.out, "no favorites yet")
		return nil
	}

	hotels, err := a.directory.ListHotels(ctx)
	if err != nil {
		return err
	}
	printHotels(a.out, favorites.FilterHotels(hotels, set), set)
	return nil
}

func (a *app) fav(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("usage: fav add|remove|toggle <hotelId>")
	}
	op, hotelID := args[0], args[1]

	if _, err := a.loadFavorites(ctx); err != nil {
		return err
	}

	var err error
	switch op {
	case "add":
		err = a.favorites.Add(ctx, hotelID)
	case "remove":
		err = a.favorites.Remove(ctx, hotelID)
	case "toggle":
		err = a.favorites.Toggle(ctx, hotelID)
	default:
		return usageError(fmt.Sprintf("unknown fav operation %q", op))
	}
	if err != nil {
		return err
	}

	if a.favorites.Contains(hotelID) {
		fmt.Fprintf(a.out, "hotel %s is a favorite\n", hotelID)
	} else {
		fmt.Fprintf(a.out, "hotel %s is not a favorite\n", hotelID)
	}
	return nil
}

func (a *app) reserve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reserve", flag.ContinueOnError)
	hotelID := fs.String("hotel", "", "hotel id")
	roomID := fs.String("room", "", "room id (optional)")
	guests := fs.Int("guests", 1, "number of guests")
	in := fs.String("in", "", "check-in date, YYYY-MM-DD")
	out := fs.String("out", "", "check-out date, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	checkIn, err := parseDate("in", *in)
	if err != nil {
		return err
	}
	checkOut, err := parseDate("out", *out)
	if err != nil {
		return err
	}

	h, err := a.directory.GetHotel(ctx, *hotelID)
	if err != nil {
		return err
	}
	var room *model.Room
	if *roomID != "" {
		r, ok := directory.Room(h.ID, *roomID)
		if !ok {
			return apperrors.NotFound("Room")
		}
		room = &r
	}

	q, err := reservations.NewQuote(*h, room, *guests, checkIn, checkOut)
	if err != nil {
		return err
	}
	res, err := a.book.Book(ctx, q)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "booked %s: %s, %d night(s), %d guest(s), total %.0f\n",
		res.ID, stayName(*res), res.NightCount, res.GuestCount, res.TotalPrice)
	return nil
}

func (a *app) reservations(ctx context.Context) error {
	list, err := a.book.History(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "no reservations yet")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTAY\tCHECK-IN\tCHECK-OUT\tGUESTS\tTOTAL")
	for _, r := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.0f\n",
			r.ID, stayName(r), formatDate(r.CheckIn), formatDate(r.CheckOut), r.GuestCount, r.TotalPrice)
	}
	return w.Flush()
}

func (a *app) cancel(ctx context.Context, args []string) error {
	id, err := oneArg(args, "reservation id")
	if err != nil {
		return err
	}
	if err := a.book.Cancel(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "cancelled %s\n", id)
	return nil
}

// watch mirrors the favorite set live and prints it after every change,
// including changes made by other clients of the same account.
func (a *app) watch(ctx context.Context) error {
	if a.provider.Current() == nil {
		return apperrors.AuthenticationRequired()
	}

	mirror := favorites.NewMirror(a.store, a.favorites)
	watcher := favorites.NewSessionWatcher(a.provider, a.favorites, mirror)
	watcher.OnError(func(err error) {
		log.Warn().Err(err).Msg("favorites sync failed")
	})

	unwatch := a.favorites.Watch(func(set favorites.Set) {
		fmt.Fprintf(a.out, "%s favorites: [%s]\n", time.Now().Format(time.TimeOnly), strings.Join(set.IDs(), ", "))
	})
	defer unwatch()

	watcher.Start(ctx)
	defer watcher.Stop()

	<-ctx.Done()
	return nil
}

func printHotels(out io.Writer, hotels []model.Hotel, set favorites.Set) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLOCATION\tRATING\t")
	for _, h := range hotels {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%s\n", h.ID, h.Name, h.Location, h.Rating, favoriteMark(set, h.ID))
	}
	w.Flush()
}

func favoriteMark(set favorites.Set, id string) string {
	if set.Contains(id) {
		return " *"
	}
	return ""
}

func stayName(r model.Reservation) string {
	if r.RoomName == "" {
		return r.HotelName
	}
	return r.HotelName + " / " + r.RoomName
}

func oneArg(args []string, name string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", usageError("expected " + name)
	}
	return args[0], nil
}

func parseDate(flagName, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, apperrors.MissingRequired(flagName)
	}
	t, err := time.Parse(model.DateLayout, value)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput(flagName, "expected YYYY-MM-DD")
	}
	return t, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(model.DateLayout)
}
