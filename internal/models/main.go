// Package models defines the core data structures shared by the sync client
// and the reference backend: user profiles, resume sections, and sessions.
package models

import "github.com/goccy/go-json"

// Profile represents the authenticated user's profile record.
type Profile struct {
	// ID is the unique identifier of the owning user.
	ID string `json:"id"`
	// Email is the account email address.
	Email string `json:"email"`
	// FullName is the display name shown on rendered resumes.
	FullName string `json:"full_name"`
	// AvatarURL points at the profile picture, if any.
	AvatarURL string `json:"avatar_url,omitempty"`
	// UpdatedAt is the server-side last-modified time in epoch milliseconds.
	UpdatedAt int64 `json:"updated_at"`
}

// ProfilePatch is a partial profile update. Nil fields are left untouched.
type ProfilePatch struct {
	Email     *string `json:"email,omitempty"`
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// Apply merges the patch into p, field by field.
func (patch ProfilePatch) Apply(p *Profile) {
	if patch.Email != nil {
		p.Email = *patch.Email
	}
	if patch.FullName != nil {
		p.FullName = *patch.FullName
	}
	if patch.AvatarURL != nil {
		p.AvatarURL = *patch.AvatarURL
	}
}

// IsZero reports whether the patch carries no changes.
func (patch ProfilePatch) IsZero() bool {
	return patch.Email == nil && patch.FullName == nil && patch.AvatarURL == nil
}

// Session identifies an authenticated user.
type Session struct {
	// UserID is the unique identifier of the signed-in user.
	UserID string `json:"user_id"`
	// Token is the bearer token presented on subsequent requests.
	Token string `json:"token"`
	// ExpiresAt is the token expiry in epoch milliseconds.
	ExpiresAt int64 `json:"expires_at"`
}

// Section holds one resume section. The client treats Content as an opaque
// JSON blob; only the backend's database schema gives it any structure.
type Section struct {
	// ResumeID is the identifier of the resume the section belongs to.
	ResumeID string `json:"resume_id"`
	// Type is one of the SectionType constants.
	Type SectionType `json:"type"`
	// Content is the section payload as edited by the user.
	Content json.RawMessage `json:"content"`
	// UpdatedAt is the server-side last-modified time in epoch milliseconds.
	UpdatedAt int64 `json:"updated_at"`
	// Deleted marks a tombstone left behind by a section removal.
	Deleted bool `json:"deleted,omitempty"`
}

// SectionType identifies one kind of resume section.
type SectionType string

const (
	// SectionPersonalInfo holds name, contacts, and links.
	SectionPersonalInfo SectionType = "personal_info"
	// SectionSummary holds the free-text professional summary.
	SectionSummary SectionType = "summary"
	// SectionWorkExperience holds the employment history entries.
	SectionWorkExperience SectionType = "work_experience"
	// SectionEducation holds degrees and schools.
	SectionEducation SectionType = "education"
	// SectionSkills holds the skill list.
	SectionSkills SectionType = "skills"
	// SectionProjects holds personal or professional projects.
	SectionProjects SectionType = "projects"
	// SectionCertifications holds certificates and licenses.
	SectionCertifications SectionType = "certifications"
	// SectionCustom holds a user-defined section.
	SectionCustom SectionType = "custom"
)

// SectionTypes lists every valid section type.
var SectionTypes = []SectionType{
	SectionPersonalInfo,
	SectionSummary,
	SectionWorkExperience,
	SectionEducation,
	SectionSkills,
	SectionProjects,
	SectionCertifications,
	SectionCustom,
}

// Valid reports whether t is a known section type.
func (t SectionType) Valid() bool {
	for _, known := range SectionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ChangeEvent is pushed over the change-notification stream whenever a
// section of a watched resume is written.
type ChangeEvent struct {
	// ID is a unique identifier for the event.
	ID string `json:"id"`
	// ResumeID is the resume the change belongs to.
	ResumeID string `json:"resume_id"`
	// Type is the section type that changed.
	Type SectionType `json:"type"`
	// Deleted is true when the change was a section removal.
	Deleted bool `json:"deleted,omitempty"`
	// Timestamp is the server time of the change in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
}
