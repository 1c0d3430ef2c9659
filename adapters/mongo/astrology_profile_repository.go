package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// AstrologyProfile is a stored chart summary of a user
type AstrologyProfile struct {
	UserID    string            `bson:"user_id"`
	Ascendant string            `bson:"ascendant,omitempty"`
	MoonSign  string            `bson:"moon_sign,omitempty"`
	SunSign   string            `bson:"sun_sign,omitempty"`
	Nakshatra string            `bson:"nakshatra,omitempty"`
	Dasha     string            `bson:"current_dasha,omitempty"`
	Planets   map[string]string `bson:"planets,omitempty"`
	Summary   string            `bson:"summary,omitempty"`
}

// Text renders the profile for an instruction context block
func (p *AstrologyProfile) Text() string {
	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, label+": "+value)
		}
	}
	add("Ascendant", p.Ascendant)
	add("Moon sign", p.MoonSign)
	add("Sun sign", p.SunSign)
	add("Nakshatra", p.Nakshatra)
	add("Current dasha", p.Dasha)
	for _, planet := range []string{"sun", "moon", "mars", "mercury", "jupiter", "venus", "saturn", "rahu", "ketu"} {
		if house, ok := p.Planets[planet]; ok {
			add(strings.ToUpper(planet[:1])+planet[1:], house)
		}
	}
	if p.Summary != "" {
		lines = append(lines, p.Summary)
	}
	return strings.Join(lines, "\n")
}

// AstrologyProfileRepository implements AstrologyProfiles using MongoDB
type AstrologyProfileRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewAstrologyProfileRepository creates a new MongoDB astrology profile repository
func NewAstrologyProfileRepository(db *mongo.Database, logger *zap.Logger) *AstrologyProfileRepository {
	collection := db.Collection("astrology_profiles")
	ensureIndexes(collection, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	}, logger)
	return &AstrologyProfileRepository{collection: collection, logger: logger}
}

// ContextForAI implements repositories.AstrologyProfiles
func (r *AstrologyProfileRepository) ContextForAI(ctx context.Context, userID string) (string, bool, error) {
	var profile AstrologyProfile
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to load astrology profile: %w", err)
	}
	text := profile.Text()
	return text, text != "", nil
}
