package leads

import (
	"strings"
	"time"

	"axiscyber/common"
)

type ContactInput struct {
	Name    string `json:"name" form:"name" validate:"required,max=120"`
	Email   string `json:"email" form:"email" validate:"required,email,max=191"`
	Phone   string `json:"phone" form:"phone" validate:"max=40"`
	Company string `json:"company" form:"company" validate:"max=120"`
	Subject string `json:"subject" form:"subject" validate:"max=200"`
	Message string `json:"message" form:"message" validate:"required,max=5000"`
	Source  string `json:"source" form:"source" validate:"max=64"`
}

func (in *ContactInput) clean() {
	in.Name = common.StripTags(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = common.StripTags(in.Phone)
	in.Company = common.StripTags(in.Company)
	in.Subject = common.StripTags(in.Subject)
	in.Message = common.StripTags(in.Message)
	in.Source = common.StripTags(in.Source)
}

type ConsultationInput struct {
	Name          string   `json:"name" form:"name" validate:"required,max=120"`
	Email         string   `json:"email" form:"email" validate:"required,email,max=191"`
	Phone         string   `json:"phone" form:"phone" validate:"max=40"`
	Company       string   `json:"company" form:"company" validate:"max=120"`
	Services      []string `json:"services" form:"services" validate:"min=1,max=10,dive,required,max=120"`
	Budget        string   `json:"budget" form:"budget" validate:"max=64"`
	Timeline      string   `json:"timeline" form:"timeline" validate:"max=64"`
	Message       string   `json:"message" form:"message" validate:"max=5000"`
	PreferredDate string   `json:"preferred_date" form:"preferred_date" validate:"omitempty,datetime=2006-01-02"`
}

func (in *ConsultationInput) clean() {
	in.Name = common.StripTags(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = common.StripTags(in.Phone)
	in.Company = common.StripTags(in.Company)
	services := make([]string, 0, len(in.Services))
	for _, s := range in.Services {
		if s = common.StripTags(s); s != "" {
			services = append(services, s)
		}
	}
	in.Services = services
	in.Budget = common.StripTags(in.Budget)
	in.Timeline = common.StripTags(in.Timeline)
	in.Message = common.StripTags(in.Message)
	in.PreferredDate = strings.TrimSpace(in.PreferredDate)
}

// preferredDate parses PreferredDate; call only after validation.
func (in *ConsultationInput) preferredDate() *time.Time {
	if in.PreferredDate == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", in.PreferredDate)
	if err != nil {
		return nil
	}
	return &t
}

type NewsletterInput struct {
	Email  string `json:"email" form:"email" validate:"required,email,max=191"`
	Name   string `json:"name" form:"name" validate:"max=120"`
	Source string `json:"source" form:"source" validate:"max=64"`
}

func (in *NewsletterInput) clean() {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = common.StripTags(in.Name)
	in.Source = common.StripTags(in.Source)
}

type ApplicationInput struct {
	Name         string `json:"name" form:"name" validate:"required,max=120"`
	Email        string `json:"email" form:"email" validate:"required,email,max=191"`
	Phone        string `json:"phone" form:"phone" validate:"max=40"`
	ResumeURL    string `json:"resume_url" form:"resume_url" validate:"required,http_url,max=512"`
	CoverLetter  string `json:"cover_letter" form:"cover_letter" validate:"max=10000"`
	LinkedInURL  string `json:"linkedin_url" form:"linkedin_url" validate:"omitempty,http_url,max=512"`
	PortfolioURL string `json:"portfolio_url" form:"portfolio_url" validate:"omitempty,http_url,max=512"`
}

func (in *ApplicationInput) clean() {
	in.Name = common.StripTags(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = common.StripTags(in.Phone)
	in.ResumeURL = strings.TrimSpace(in.ResumeURL)
	in.CoverLetter = common.StripTags(in.CoverLetter)
	in.LinkedInURL = strings.TrimSpace(in.LinkedInURL)
	in.PortfolioURL = strings.TrimSpace(in.PortfolioURL)
}
