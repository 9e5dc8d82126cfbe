package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"axiscyber/common"
	"axiscyber/models"
	"axiscyber/store"
)

//go:embed fixtures/content.yaml
var fixtureYAML []byte

type Fixture struct {
	Categories []struct {
		Name        string `yaml:"name"`
		Slug        string `yaml:"slug"`
		Description string `yaml:"description"`
	} `yaml:"categories"`
	Tags []struct {
		Name string `yaml:"name"`
		Slug string `yaml:"slug"`
	} `yaml:"tags"`
	Posts []struct {
		Title       string   `yaml:"title"`
		Slug        string   `yaml:"slug"`
		Category    string   `yaml:"category"`
		Tags        []string `yaml:"tags"`
		Featured    bool     `yaml:"featured"`
		PublishedAt string   `yaml:"published_at"`
		Excerpt     string   `yaml:"excerpt"`
		Content     string   `yaml:"content"`
	} `yaml:"posts"`
	EmailTemplates []struct {
		Name     string `yaml:"name"`
		Slug     string `yaml:"slug"`
		Category string `yaml:"category"`
		Subject  string `yaml:"subject"`
		Body     string `yaml:"body"`
	} `yaml:"email_templates"`
	Services []struct {
		Title            string   `yaml:"title"`
		Slug             string   `yaml:"slug"`
		Icon             string   `yaml:"icon"`
		SortOrder        int      `yaml:"sort_order"`
		Featured         bool     `yaml:"featured"`
		ShortDescription string   `yaml:"short_description"`
		Description      string   `yaml:"description"`
		Features         []string `yaml:"features"`
	} `yaml:"services"`
	Team []struct {
		Name      string `yaml:"name"`
		Slug      string `yaml:"slug"`
		Role      string `yaml:"role"`
		SortOrder int    `yaml:"sort_order"`
		Bio       string `yaml:"bio"`
	} `yaml:"team"`
	Testimonials []struct {
		ClientName string `yaml:"client_name"`
		ClientRole string `yaml:"client_role"`
		Company    string `yaml:"company"`
		Rating     int    `yaml:"rating"`
		Featured   bool   `yaml:"featured"`
		Quote      string `yaml:"quote"`
	} `yaml:"testimonials"`
}

// LoadFixture parses the embedded seed content.
func LoadFixture() (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(fixtureYAML, &f); err != nil {
		return nil, fmt.Errorf("parsing seed fixture: %w", err)
	}
	return &f, nil
}

// Seed upserts the embedded fixture. Rows are matched by slug (testimonials
// by client and company), so running it again only refreshes content.
func Seed(ctx context.Context, db *gorm.DB) error {
	f, err := LoadFixture()
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		categories := map[string]uint{}
		for _, c := range f.Categories {
			row := models.BlogCategory{Name: c.Name, Slug: c.Slug, Description: c.Description}
			if err := upsert(ctx, tx, &row, c.Slug); err != nil {
				return fmt.Errorf("seeding category %s: %w", c.Slug, err)
			}
			categories[c.Slug] = row.ID
		}

		tags := map[string]models.BlogTag{}
		for _, t := range f.Tags {
			row := models.BlogTag{Name: t.Name, Slug: t.Slug}
			if err := upsert(ctx, tx, &row, t.Slug); err != nil {
				return fmt.Errorf("seeding tag %s: %w", t.Slug, err)
			}
			tags[t.Slug] = row
		}

		for _, p := range f.Posts {
			publishedAt, err := time.ParseInLocation("2006-01-02", p.PublishedAt, time.UTC)
			if err != nil {
				return fmt.Errorf("post %s: published_at: %w", p.Slug, err)
			}
			row := models.BlogPost{
				Title:          p.Title,
				Slug:           p.Slug,
				Excerpt:        p.Excerpt,
				Content:        p.Content,
				Status:         models.StatusPublished,
				Featured:       p.Featured,
				ReadingMinutes: common.ReadingMinutes(p.Content),
				PublishedAt:    &publishedAt,
			}
			if id, ok := categories[p.Category]; ok {
				row.CategoryID = &id
			}
			if err := upsert(ctx, tx, &row, p.Slug); err != nil {
				return fmt.Errorf("seeding post %s: %w", p.Slug, err)
			}

			postTags := make([]models.BlogTag, 0, len(p.Tags))
			for _, slug := range p.Tags {
				tag, ok := tags[slug]
				if !ok {
					return fmt.Errorf("post %s: unknown tag %q", p.Slug, slug)
				}
				postTags = append(postTags, tag)
			}
			if err := tx.Model(&row).Association("Tags").Replace(postTags); err != nil {
				return fmt.Errorf("tagging post %s: %w", p.Slug, err)
			}
		}

		for _, t := range f.EmailTemplates {
			row := models.EmailTemplate{Name: t.Name, Slug: t.Slug, Category: t.Category, Subject: t.Subject, Body: t.Body, Active: true}
			if err := upsert(ctx, tx, &row, t.Slug); err != nil {
				return fmt.Errorf("seeding email template %s: %w", t.Slug, err)
			}
		}

		for _, s := range f.Services {
			row := models.Service{
				Title:            s.Title,
				Slug:             s.Slug,
				ShortDescription: s.ShortDescription,
				Description:      s.Description,
				Icon:             s.Icon,
				Features:         models.JSONList(s.Features),
				SortOrder:        s.SortOrder,
				Active:           true,
				Featured:         s.Featured,
			}
			if err := upsert(ctx, tx, &row, s.Slug); err != nil {
				return fmt.Errorf("seeding service %s: %w", s.Slug, err)
			}
		}

		for _, m := range f.Team {
			row := models.TeamMember{Name: m.Name, Slug: m.Slug, Role: m.Role, Bio: m.Bio, SortOrder: m.SortOrder, Active: true}
			if err := upsert(ctx, tx, &row, m.Slug); err != nil {
				return fmt.Errorf("seeding team member %s: %w", m.Slug, err)
			}
		}

		for _, t := range f.Testimonials {
			row := models.Testimonial{
				ClientName: t.ClientName,
				ClientRole: t.ClientRole,
				Company:    t.Company,
				Quote:      t.Quote,
				Rating:     t.Rating,
				Approved:   true,
				Featured:   t.Featured,
			}
			match := map[string]any{"client_name": t.ClientName, "company": t.Company}
			if err := store.New[models.Testimonial](tx, store.Spec{}).UpsertWhere(ctx, &row, match); err != nil {
				return fmt.Errorf("seeding testimonial from %s: %w", t.ClientName, err)
			}
		}

		zap.S().Infow("seed data loaded",
			"categories", len(f.Categories),
			"tags", len(f.Tags),
			"posts", len(f.Posts),
			"services", len(f.Services),
			"team", len(f.Team),
			"testimonials", len(f.Testimonials),
		)
		return nil
	})
}

func upsert[T any](ctx context.Context, tx *gorm.DB, row *T, slug string) error {
	return store.New[T](tx, store.Spec{}).Upsert(ctx, row, "slug", slug)
}
