package model

// BusinessInfo is the user-supplied data a website is generated from.
type BusinessInfo struct {
	CompanyName     string    `json:"company_name" toml:"company_name"`
	Description     string    `json:"description" toml:"description"`
	Industry        string    `json:"industry,omitempty" toml:"industry"`
	Country         string    `json:"country,omitempty" toml:"country"`
	YearEstablished int       `json:"year_established,omitempty" toml:"year_established"`
	ContactEmail    string    `json:"contact_email,omitempty" toml:"contact_email"`
	ContactPhone    string    `json:"contact_phone,omitempty" toml:"contact_phone"`
	Address         string    `json:"address,omitempty" toml:"address"`
	Website         string    `json:"website,omitempty" toml:"website"`
	LogoURL         string    `json:"logo_url,omitempty" toml:"logo_url"`
	HeroImageURL    string    `json:"hero_image_url,omitempty" toml:"hero_image_url"`
	CatalogURL      string    `json:"catalog_url,omitempty" toml:"catalog_url"`
	ExportMarkets   []string  `json:"export_markets,omitempty" toml:"export_markets"`
	Certifications  []string  `json:"certifications,omitempty" toml:"certifications"`
	Products        []Product `json:"products,omitempty" toml:"products"`
}

// Product is one item of the business's export catalogue.
type Product struct {
	Name        string   `json:"name" toml:"name"`
	Description string   `json:"description,omitempty" toml:"description"`
	Category    string   `json:"category,omitempty" toml:"category"`
	ImageURLs   []string `json:"image_urls,omitempty" toml:"image_urls"`
	MinOrder    string   `json:"min_order,omitempty" toml:"min_order"`
}

// WebsiteConfig carries presentation choices for the generated site.
type WebsiteConfig struct {
	Template     string   `json:"template,omitempty" toml:"template"`
	ColorScheme  string   `json:"color_scheme,omitempty" toml:"color_scheme"`
	Languages    []string `json:"languages,omitempty" toml:"languages"`
	Sections     []string `json:"sections,omitempty" toml:"sections"`
	CustomDomain string   `json:"custom_domain,omitempty" toml:"custom_domain"`
}

// GenerateRequest is the body of POST /api/jobs/generate.
type GenerateRequest struct {
	BusinessInfo  BusinessInfo  `json:"business_info" toml:"business_info"`
	WebsiteConfig WebsiteConfig `json:"website_config" toml:"website_config"`
}

// GenerateResponse is what the backend returns for an accepted request.
type GenerateResponse struct {
	JobID   string    `json:"job_id"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message,omitempty"`
}
