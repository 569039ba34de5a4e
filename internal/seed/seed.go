// Package seed loads sample or migration data from a YAML or JSON file.
//
// Seeding is idempotent: rows are matched on their natural keys (location
// name, box code, item code, user email) and existing rows are left alone.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/vitrina/internal/model"
	"github.com/erazemk/vitrina/internal/store"
)

// DefaultPassword is used for seeded users without a password.
const DefaultPassword = "password123"

// File is the seed document. JSON documents parse as well, since JSON is
// valid YAML.
type File struct {
	Locations        []Location `yaml:"locations"`
	Boxes            []Box      `yaml:"boxes"`
	Items            []Item     `yaml:"items"`
	Users            []User     `yaml:"users"`
	MovementRequests []Movement `yaml:"movement_requests"`
}

type Location struct {
	Name         string `yaml:"name"`
	LocationType string `yaml:"location_type"`
	Description  string `yaml:"description"`
}

type Box struct {
	BoxCode     string `yaml:"box_code"`
	Label       string `yaml:"label"`
	Description string `yaml:"description"`
	Location    string `yaml:"location"`
}

type Item struct {
	ItemCode        string `yaml:"item_code"`
	Title           string `yaml:"title"`
	Platform        string `yaml:"platform"`
	Description     string `yaml:"description"`
	ItemType        string `yaml:"item_type"`
	Condition       string `yaml:"condition"`
	IsComplete      string `yaml:"is_complete"`
	IsFunctional    string `yaml:"is_functional"`
	Box             string `yaml:"box"`
	Location        string `yaml:"location"`
	IsPublicVisible *bool  `yaml:"is_public_visible"`
}

type User struct {
	Email             string `yaml:"email"`
	Name              string `yaml:"name"`
	Role              string `yaml:"role"`
	Password          string `yaml:"password"`
	IsActive          *bool  `yaml:"is_active"`
	AccessExpiresDays *int   `yaml:"access_expires_days"`
}

type Movement struct {
	ItemCode     string `yaml:"item_code"`
	FromLocation string `yaml:"from_location"`
	ToLocation   string `yaml:"to_location"`
	Status       string `yaml:"status"`
	AdminComment string `yaml:"admin_comment"`
}

// Report counts the rows a run created.
type Report struct {
	Locations        int
	Boxes            int
	Items            int
	Users            int
	MovementRequests int
	Skipped          int
}

// Load reads and parses a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return Parse(data)
}

// Parse parses a YAML or JSON seed document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	return &f, nil
}

type seeder struct {
	db        *sql.DB
	report    Report
	locations map[string]*model.Location
	boxes     map[string]*model.Box
	admin     *model.User
	volunteer *model.User
}

// Apply writes f to the database.
func Apply(ctx context.Context, db *sql.DB, f *File) (*Report, error) {
	s := &seeder{
		db:        db,
		locations: map[string]*model.Location{},
		boxes:     map[string]*model.Box{},
	}

	steps := []struct {
		name string
		fn   func(context.Context, *File) error
	}{
		{"locations", s.seedLocations},
		{"boxes", s.seedBoxes},
		{"users", s.seedUsers},
		{"items", s.seedItems},
		{"movement requests", s.seedMovements},
	}
	for _, step := range steps {
		if err := step.fn(ctx, f); err != nil {
			return &s.report, fmt.Errorf("seeding %s: %w", step.name, err)
		}
	}

	return &s.report, nil
}

func (s *seeder) skip(msg string, args ...any) {
	slog.Warn(msg, args...)
	s.report.Skipped++
}

func (s *seeder) seedLocations(ctx context.Context, f *File) error {
	for _, l := range f.Locations {
		loc, err := store.GetLocationByName(ctx, s.db, l.Name)
		if err != nil {
			return err
		}
		if loc == nil {
			category := strings.ToUpper(l.LocationType)
			if !model.ValidLocationCategory(category) {
				s.skip("seed location has unknown type", "name", l.Name, "type", l.LocationType)
				continue
			}
			loc, err = store.CreateLocation(ctx, s.db, l.Name, category, l.Description)
			if err != nil {
				return err
			}
			s.report.Locations++
		}
		s.locations[l.Name] = loc
	}
	return nil
}

func (s *seeder) location(ctx context.Context, name string) (*model.Location, error) {
	if loc, ok := s.locations[name]; ok {
		return loc, nil
	}
	loc, err := store.GetLocationByName(ctx, s.db, name)
	if err != nil || loc == nil {
		return nil, err
	}
	s.locations[name] = loc
	return loc, nil
}

func (s *seeder) seedBoxes(ctx context.Context, f *File) error {
	for _, b := range f.Boxes {
		box, err := store.GetBoxByCode(ctx, s.db, b.BoxCode)
		if err != nil {
			return err
		}
		if box == nil {
			loc, err := s.location(ctx, b.Location)
			if err != nil {
				return err
			}
			if loc == nil {
				s.skip("seed box references unknown location", "box", b.BoxCode, "location", b.Location)
				continue
			}
			box, err = store.CreateBox(ctx, s.db, b.BoxCode, b.Label, b.Description, loc.ID)
			if err != nil {
				return err
			}
			s.report.Boxes++
		}
		s.boxes[b.BoxCode] = box
	}
	return nil
}

func (s *seeder) seedUsers(ctx context.Context, f *File) error {
	for _, u := range f.Users {
		role := strings.ToLower(u.Role)
		if role == "" {
			role = model.RoleVolunteer
		}

		user, err := store.GetUserByEmail(ctx, s.db, u.Email)
		if err != nil {
			return err
		}
		if user == nil {
			if !model.ValidRole(role) {
				s.skip("seed user has unknown role", "email", u.Email, "role", u.Role)
				continue
			}
			user, err = s.createUser(ctx, u, role)
			if err != nil {
				return err
			}
			s.report.Users++
		}

		switch {
		case user.Role == model.RoleAdmin && s.admin == nil:
			s.admin = user
		case user.Role == model.RoleVolunteer && user.IsActive && s.volunteer == nil:
			s.volunteer = user
		}
	}
	return nil
}

func (s *seeder) createUser(ctx context.Context, u User, role string) (*model.User, error) {
	password := u.Password
	if password == "" {
		password = DefaultPassword
	}
	if err := model.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("user %s: %w", u.Email, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user, err := store.CreateUser(ctx, s.db, u.Email, u.Name, string(hash), role)
	if err != nil {
		return nil, err
	}

	if u.IsActive == nil && u.AccessExpiresDays == nil {
		return user, nil
	}

	update := store.UserUpdate{Name: user.Name, Role: user.Role, IsActive: true}
	if u.IsActive != nil {
		update.IsActive = *u.IsActive
	}
	if u.AccessExpiresDays != nil {
		expires := time.Now().AddDate(0, 0, *u.AccessExpiresDays)
		update.AccessExpiresAt = &expires
	}
	if err := store.UpdateUser(ctx, s.db, user.ID, update); err != nil {
		return nil, err
	}
	return store.GetUser(ctx, s.db, user.ID)
}

func (s *seeder) seedItems(ctx context.Context, f *File) error {
	var actor *int64
	if s.admin != nil {
		actor = &s.admin.ID
	}

	for _, it := range f.Items {
		existing, err := store.GetItemByCode(ctx, s.db, it.ItemCode)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		loc, err := s.location(ctx, it.Location)
		if err != nil {
			return err
		}
		if loc == nil {
			s.skip("seed item references unknown location", "item", it.ItemCode, "location", it.Location)
			continue
		}

		var boxID *int64
		if it.Box != "" {
			box, ok := s.boxes[it.Box]
			if !ok {
				s.skip("seed item references unknown box", "item", it.ItemCode, "box", it.Box)
				continue
			}
			boxID = &box.ID
		}

		details := model.ItemDetails{
			Title:        it.Title,
			Platform:     it.Platform,
			ItemType:     it.ItemType,
			Condition:    it.Condition,
			IsComplete:   it.IsComplete,
			IsFunctional: it.IsFunctional,
			Description:  it.Description,
		}
		item, err := store.CreateItem(ctx, s.db, it.ItemCode, details, boxID, loc.ID, actor)
		if err != nil {
			return err
		}
		if it.IsPublicVisible != nil && !*it.IsPublicVisible {
			if err := store.SetItemVisibility(ctx, s.db, item.ID, false); err != nil {
				return err
			}
		}
		s.report.Items++
	}
	return nil
}

func (s *seeder) seedMovements(ctx context.Context, f *File) error {
	for _, m := range f.MovementRequests {
		status := m.Status
		if status == "" {
			status = model.MovementWaitingApproval
		}
		if status != model.MovementWaitingApproval && status != model.MovementApproved && status != model.MovementRejected {
			s.skip("seed movement has unsupported status", "item", m.ItemCode, "status", m.Status)
			continue
		}

		item, err := store.GetItemByCode(ctx, s.db, m.ItemCode)
		if err != nil {
			return err
		}
		from, err := s.location(ctx, m.FromLocation)
		if err != nil {
			return err
		}
		to, err := s.location(ctx, m.ToLocation)
		if err != nil {
			return err
		}
		if item == nil || from == nil || to == nil {
			s.skip("seed movement references unknown rows", "item", m.ItemCode,
				"from", m.FromLocation, "to", m.ToLocation)
			continue
		}
		if item.CurrentLocationID != from.ID {
			s.skip("seed movement does not start at the item's location", "item", m.ItemCode, "from", m.FromLocation)
			continue
		}

		exists, err := s.movementExists(ctx, item.ID, from.ID, to.ID, status)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		if status != model.MovementWaitingApproval && s.admin == nil {
			s.skip("seed movement needs an admin user", "item", m.ItemCode)
			continue
		}

		var requester *int64
		if s.volunteer != nil {
			requester = &s.volunteer.ID
		}
		req, err := store.CreateMovementRequest(ctx, s.db, item.ID, requester, to.ID, "")
		if err != nil {
			return err
		}

		switch status {
		case model.MovementApproved:
			_, err = store.ApproveMovementRequest(ctx, s.db, req.ID, s.admin.ID, m.AdminComment)
		case model.MovementRejected:
			_, err = store.RejectMovementRequest(ctx, s.db, req.ID, s.admin.ID, m.AdminComment)
		}
		if err != nil {
			return err
		}
		s.report.MovementRequests++
	}
	return nil
}

func (s *seeder) movementExists(ctx context.Context, itemID, fromID, toID int64, status string) (bool, error) {
	existing, err := store.ListMovementRequests(ctx, s.db, store.MovementFilter{ItemID: itemID, Status: status})
	if err != nil {
		return false, err
	}
	for _, r := range existing {
		if r.FromLocationID == fromID && r.ToLocationID == toID {
			return true, nil
		}
	}
	return false, nil
}
