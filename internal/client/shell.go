package client

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/swyppy/internal/logger"
	"github.com/atinyakov/swyppy/internal/models"
	"github.com/atinyakov/swyppy/internal/service"
)

// Auth is the part of the auth gateway the shell drives.
type Auth interface {
	SignUp(ctx context.Context, username, email, password, confirm string) (service.SignInResult, error)
	SignIn(ctx context.Context, email, password string, remember bool) (service.SignInResult, error)
	Logout(ctx context.Context) (models.Route, error)
	Current() (service.SignInResult, bool)
	StartupRoute() models.Route
	SavedRole() string
}

// Listings is the part of the listing repository the shell drives.
type Listings interface {
	Create(ctx context.Context, draft models.Listing, images, videos [][]byte, progress service.ProgressFunc) (string, error)
	FetchAll(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, id string, fields models.Listing, newImage []byte) error
	Search(q string) []models.Listing
	FilterByPriceRange(lo, hi float64) []models.Listing
	FilterByBedrooms(min int) []models.Listing
	FilterByLocation(loc string) []models.Listing
	ByID(id string) (models.Listing, bool)
	All() []models.Listing
	BNB() []models.Listing
	Apartments() []models.Listing
	Counts() service.Counts
}

const helpText = `Commands:
  register | login | logout | whoami
  refresh | list | bnb | apartments | show <id>
  search <text> | price <min> <max> | beds <min> | location <text>
  add | edit <id> | delete <id>   (admin)
  help | exit`

// Shell is a line-oriented front-end over the auth and listing services.
type Shell struct {
	Auth     Auth
	Listings Listings
	Prompt   *Prompter
	Out      io.Writer
	Log      *zap.Logger

	route models.Route
}

// NewShell builds a shell reading commands from in and printing to out.
func NewShell(auth Auth, listings Listings, in io.Reader, out io.Writer, log *zap.Logger) *Shell {
	return &Shell{
		Auth:     auth,
		Listings: listings,
		Prompt:   NewPrompter(in, out),
		Out:      out,
		Log:      logger.OrNop(log),
	}
}

// Route is the screen the shell is currently on.
func (s *Shell) Route() models.Route { return s.route }

// Run executes commands until exit or end of input.
func (s *Shell) Run(ctx context.Context) error {
	s.route = s.Auth.StartupRoute()
	if s.route == models.RouteMain {
		fmt.Fprintf(s.Out, "Welcome back (%s). Log in again to make changes.\n", s.Auth.SavedRole())
		s.refresh(ctx)
	} else {
		fmt.Fprintln(s.Out, "Welcome to swyppy. Type 'register' or 'login' to start, 'help' for commands.")
	}

	for {
		fmt.Fprint(s.Out, "swyppy> ")
		line, ok := s.Prompt.Line()
		if !ok {
			return nil
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if args[0] == "exit" {
			fmt.Fprintln(s.Out, "Bye")
			return nil
		}
		s.dispatch(ctx, args[0], args[1:])
	}
}

func (s *Shell) dispatch(ctx context.Context, cmd string, args []string) {
	switch cmd {
	case "help":
		fmt.Fprintln(s.Out, helpText)
	case "register":
		s.register(ctx)
	case "login":
		s.login(ctx)
	case "logout":
		route, err := s.Auth.Logout(ctx)
		if err != nil {
			s.Log.Warn("logout left a stale session", zap.Error(err))
		}
		s.route = route
		fmt.Fprintln(s.Out, "Logged out")
	case "whoami":
		if who, ok := s.Auth.Current(); ok {
			fmt.Fprintf(s.Out, "%s <%s> role=%s\n", who.Username, who.Email, who.Role)
		} else {
			fmt.Fprintln(s.Out, "Not logged in")
		}
	case "refresh":
		s.refresh(ctx)
	case "list":
		s.print(s.Listings.All())
	case "bnb":
		s.print(s.Listings.BNB())
	case "apartments":
		s.print(s.Listings.Apartments())
	case "show":
		s.show(args)
	case "search":
		s.print(s.Listings.Search(strings.Join(args, " ")))
	case "price":
		s.price(args)
	case "beds":
		n, err := intArg(args)
		if err != nil {
			fmt.Fprintln(s.Out, "Usage: beds <min>")
			return
		}
		s.print(s.Listings.FilterByBedrooms(n))
	case "location":
		s.print(s.Listings.FilterByLocation(strings.Join(args, " ")))
	case "add":
		if s.admin() {
			s.add(ctx)
		}
	case "edit":
		if s.admin() {
			s.edit(ctx, args)
		}
	case "delete":
		if s.admin() {
			s.remove(ctx, args)
		}
	default:
		fmt.Fprintln(s.Out, "Unknown command. Type 'help' for a list of commands.")
	}
}

func (s *Shell) register(ctx context.Context) {
	username := s.Prompt.Ask("Username")
	email := s.Prompt.Ask("Email")
	password := s.Prompt.Ask("Password")
	confirm := s.Prompt.Ask("Confirm password")

	who, err := s.Auth.SignUp(ctx, username, email, password, confirm)
	if err != nil {
		fmt.Fprintln(s.Out, models.Message(err))
		return
	}
	s.route = models.RouteForRole(who.Role)
	fmt.Fprintf(s.Out, "Registration successful. Welcome, %s\n", who.Username)
	s.refresh(ctx)
}

func (s *Shell) login(ctx context.Context) {
	email := s.Prompt.Ask("Email")
	password := s.Prompt.Ask("Password")
	remember := s.Prompt.Confirm("Remember me")

	who, err := s.Auth.SignIn(ctx, email, password, remember)
	if err != nil {
		fmt.Fprintln(s.Out, models.Message(err))
		return
	}
	s.route = models.RouteForRole(who.Role)
	fmt.Fprintf(s.Out, "Welcome, %s (%s)\n", who.Username, who.Role)
	if s.route == models.RouteAddProperty {
		fmt.Fprintln(s.Out, "Admin mode: use 'add', 'edit <id>' and 'delete <id>'.")
	}
	s.refresh(ctx)
}

func (s *Shell) refresh(ctx context.Context) {
	if err := s.Listings.FetchAll(ctx); err != nil {
		fmt.Fprintln(s.Out, models.Message(err))
		return
	}
	c := s.Listings.Counts()
	fmt.Fprintf(s.Out, "%d listings (%d BNB, %d apartments)\n", c.All, c.BNB, c.Apartments)
}

func (s *Shell) print(ls []models.Listing) {
	if len(ls) == 0 {
		fmt.Fprintln(s.Out, "No properties found")
		return
	}
	for _, l := range ls {
		fmt.Fprintf(s.Out, "%-20s %-9s %10s %3s bd  %-18s %s\n",
			l.ID, l.Category, l.Price, l.Bedrooms, l.Location, l.Name)
	}
}

func (s *Shell) show(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.Out, "Usage: show <id>")
		return
	}
	l, ok := s.Listings.ByID(args[0])
	if !ok {
		fmt.Fprintln(s.Out, "Property not found")
		return
	}
	fmt.Fprintf(s.Out, "%s\n  %s, %s\n  price %s, %s bedrooms, %s bathrooms\n",
		l.Name, l.Category, l.Location, l.Price, l.Bedrooms, l.Bathrooms)
	if l.Description != "" {
		fmt.Fprintf(s.Out, "  %s\n", l.Description)
	}
	if l.Amenities != "" {
		fmt.Fprintf(s.Out, "  amenities: %s\n", l.Amenities)
	}
	fmt.Fprintf(s.Out, "  agent %s %s %s whatsapp %s\n", l.AgentName, l.AgentPhone, l.AgentEmail, l.WhatsappNumber)
	if l.Latitude != nil && l.Longitude != nil {
		fmt.Fprintf(s.Out, "  map %f,%f\n", *l.Latitude, *l.Longitude)
	}
	for i, u := range l.MediaURLs {
		kind := models.MediaImage
		if i < len(l.MediaTypes) {
			kind = l.MediaTypes[i]
		}
		fmt.Fprintf(s.Out, "  %s %s\n", kind, u)
	}
	if len(l.MediaURLs) == 0 && l.ImageURL != "" {
		fmt.Fprintf(s.Out, "  image %s\n", l.ImageURL)
	}
}

func (s *Shell) price(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.Out, "Usage: price <min> <max>")
		return
	}
	lo, err1 := strconv.ParseFloat(args[0], 64)
	hi, err2 := strconv.ParseFloat(args[1], 64)
	if err1 != nil || err2 != nil {
		fmt.Fprintln(s.Out, "Usage: price <min> <max>")
		return
	}
	s.print(s.Listings.FilterByPriceRange(lo, hi))
}

func intArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("want one argument")
	}
	return strconv.Atoi(args[0])
}

func (s *Shell) admin() bool {
	if who, ok := s.Auth.Current(); ok && who.Role == models.RoleAdmin {
		return true
	}
	fmt.Fprintln(s.Out, "Admin access only")
	return false
}

func (s *Shell) add(ctx context.Context) {
	s.route = models.RouteAddProperty
	draft, err := s.Prompt.ListingFields(models.Listing{Category: models.CategoryBNB})
	if err != nil {
		fmt.Fprintln(s.Out, models.Message(err))
		return
	}
	images, err := ReadMedia(s.Prompt.Paths("Image files"))
	if err != nil {
		fmt.Fprintln(s.Out, models.Message(err))
		return
	}
	videos, err := ReadMedia(s.Prompt.Paths("Video files"))
	if err != nil {
		fmt.Fprintln(s.Out, models.Message(err))
		return
	}
	if err := draft.ValidateDraft(len(images) + len(videos)); err != nil {
		fmt.Fprintln(s.Out, models.Message(err))
		return
	}

	id, err := s.Listings.Create(ctx, draft, images, videos, func(done, total int) {
		fmt.Fprintf(s.Out, "Uploading %d/%d\n", done, total)
	})
	if err != nil {
		fmt.Fprintln(s.Out, models.Message(err))
		return
	}
	fmt.Fprintf(s.Out, "Property uploaded successfully: %s\n", id)
	s.refresh(ctx)
}

func (s *Shell) edit(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.Out, "Usage: edit <id>")
		return
	}
	cur, ok := s.Listings.ByID(args[0])
	if !ok {
		fmt.Fprintln(s.Out, "Property not found")
		return
	}
	fields, err := s.Prompt.ListingFields(cur)
	if err != nil {
		fmt.Fprintln(s.Out, models.Message(err))
		return
	}

	var image []byte
	if path := s.Prompt.Ask("New image file (empty to keep)"); path != "" {
		data, err := ReadMedia([]string{path})
		if err != nil {
			fmt.Fprintln(s.Out, models.Message(err))
			return
		}
		image = data[0]
	}

	if err := s.Listings.Update(ctx, cur.ID, fields, image); err != nil {
		fmt.Fprintln(s.Out, models.Message(err))
		return
	}
	fmt.Fprintln(s.Out, "Property updated")
}

func (s *Shell) remove(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.Out, "Usage: delete <id>")
		return
	}
	if !s.Prompt.Confirm("Delete " + args[0] + "?") {
		return
	}
	if err := s.Listings.Delete(ctx, args[0]); err != nil {
		fmt.Fprintln(s.Out, models.Message(err))
		return
	}
	fmt.Fprintln(s.Out, "Property deleted")
}
