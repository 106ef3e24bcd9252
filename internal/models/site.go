package models

// SiteConfiguration holds the outgoing mail identity of a site.
type SiteConfiguration struct {
	SiteID       string `db:"site_id" json:"site_id"`
	Domain       string `db:"domain" json:"domain"`
	SMTPHost     string `db:"smtp_host" json:"smtp_host"`
	SMTPPort     int    `db:"smtp_port" json:"smtp_port"`
	SMTPUsername string `db:"smtp_username" json:"smtp_username"`

	// SMTPPassword never leaves the process: it is not serialized into
	// caches or responses.
	SMTPPassword string `db:"smtp_password" json:"-"`
	UseTLS       bool   `db:"use_tls" json:"use_tls"`

	// UseSSL selects implicit TLS (SMTPS) instead of STARTTLS.
	UseSSL    bool   `db:"use_ssl" json:"use_ssl"`
	FromEmail string `db:"from_email" json:"from_email"`
	FromName  string `db:"from_name" json:"from_name"`
	Enabled   bool   `db:"enabled" json:"enabled"`
}
