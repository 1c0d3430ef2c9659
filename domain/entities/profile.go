package entities

// ProfileField names one of the four fields collected before astrology guidance starts.
type ProfileField string

const (
	FieldName          ProfileField = "name"
	FieldBirthDate     ProfileField = "birth_date"
	FieldBirthTime     ProfileField = "birth_time"
	FieldBirthLocation ProfileField = "birth_location"
)

// ProfileFields lists the fields in the order they are asked for.
var ProfileFields = []ProfileField{FieldName, FieldBirthDate, FieldBirthTime, FieldBirthLocation}

// ProfileFragment is the partial birth profile collected from a user.
// An empty string means the field has not been captured.
type ProfileFragment struct {
	Name          string `json:"name,omitempty"`
	BirthDate     string `json:"birth_date,omitempty"`
	BirthTime     string `json:"birth_time,omitempty"`
	BirthLocation string `json:"birth_location,omitempty"`
}

// Get returns the value of a field.
func (f ProfileFragment) Get(field ProfileField) string {
	switch field {
	case FieldName:
		return f.Name
	case FieldBirthDate:
		return f.BirthDate
	case FieldBirthTime:
		return f.BirthTime
	case FieldBirthLocation:
		return f.BirthLocation
	}
	return ""
}

// Set assigns a field. Unknown fields are ignored.
func (f *ProfileFragment) Set(field ProfileField, value string) {
	switch field {
	case FieldName:
		f.Name = value
	case FieldBirthDate:
		f.BirthDate = value
	case FieldBirthTime:
		f.BirthTime = value
	case FieldBirthLocation:
		f.BirthLocation = value
	}
}

// Complete reports whether all four fields are present.
func (f ProfileFragment) Complete() bool {
	return len(f.Missing()) == 0
}

// Missing returns the absent fields in canonical order.
func (f ProfileFragment) Missing() []ProfileField {
	var missing []ProfileField
	for _, field := range ProfileFields {
		if f.Get(field) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// Merge fills absent fields from other and reports whether anything changed.
// Present fields are never overwritten.
func (f *ProfileFragment) Merge(other ProfileFragment) bool {
	changed := false
	for _, field := range ProfileFields {
		if f.Get(field) == "" && other.Get(field) != "" {
			f.Set(field, other.Get(field))
			changed = true
		}
	}
	return changed
}

// UserState is the durable per-user record: the collected fragment plus the
// currently bound persona.
type UserState struct {
	ProfileFragment
	PersonaID string `json:"persona_id,omitempty"`
}
