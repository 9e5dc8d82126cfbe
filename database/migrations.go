package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"axiscyber/models"
)

// Models lists every CMS table in migration order.
func Models() []any {
	return []any{
		&models.AdminUser{},
		&models.BlogCategory{},
		&models.BlogTag{},
		&models.TeamMember{},
		&models.BlogPost{},
		&models.Service{},
		&models.Testimonial{},
		&models.CaseStudy{},
		&models.MediaFile{},
		&models.EmailTemplate{},
		&models.EmailCampaign{},
		&models.JobPosting{},
		&models.JobApplication{},
		&models.ContactSubmission{},
		&models.ConsultationRequest{},
		&models.NewsletterSubscription{},
	}
}

func RunMigrations(db *gorm.DB) error {
	zap.S().Info("Running database migrations...")

	if err := db.AutoMigrate(Models()...); err != nil {
		zap.S().Errorw("Error running migrations", "error", err)
		return err
	}

	zap.S().Info("Migrations completed successfully")
	return nil
}
