package seeds

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/actuallystonmai/recommendation-engine/internal/logging"
	"github.com/actuallystonmai/recommendation-engine/internal/repository"
)

const (
	userCount    = 20
	historyCount = 300
)

type film struct {
	title     string
	genres    []string
	directors []string
	cast      []string
	year      int
	storyline string
}

var catalog = []film{
	{"Die Hard", []string{"action", "thriller"}, []string{"John McTiernan"}, []string{"Bruce Willis", "Alan Rickman"}, 1988,
		"A New York cop is trapped in a Los Angeles skyscraper taken over by thieves posing as terrorists."},
	{"Mad Max: Fury Road", []string{"action", "sci-fi"}, []string{"George Miller"}, []string{"Tom Hardy", "Charlize Theron"}, 2015,
		"In a desert wasteland a rebel warrior and a drifter flee a tyrant across a furious road war."},
	{"John Wick", []string{"action", "thriller"}, []string{"Chad Stahelski"}, []string{"Keanu Reeves", "Willem Dafoe"}, 2014,
		"A retired hitman hunts the gangsters who took everything left of his old life."},
	{"The Dark Knight", []string{"action", "drama"}, []string{"Christopher Nolan"}, []string{"Christian Bale", "Heath Ledger"}, 2008,
		"Batman faces a criminal mastermind who wants to plunge Gotham into anarchy."},
	{"Gladiator", []string{"action", "drama"}, []string{"Ridley Scott"}, []string{"Russell Crowe", "Joaquin Phoenix"}, 2000,
		"A betrayed Roman general fights his way through the arena to avenge his family."},
	{"Top Gun: Maverick", []string{"action"}, []string{"Joseph Kosinski"}, []string{"Tom Cruise", "Miles Teller"}, 2022,
		"A veteran navy pilot trains young aviators for a near impossible mission."},
	{"Mission: Impossible - Fallout", []string{"action", "thriller"}, []string{"Christopher McQuarrie"}, []string{"Tom Cruise", "Rebecca Ferguson"}, 2018,
		"An agent races to recover stolen plutonium after a mission goes wrong."},
	{"Casino Royale", []string{"action", "thriller"}, []string{"Martin Campbell"}, []string{"Daniel Craig", "Eva Green"}, 2006,
		"A newly licensed spy must beat a terrorist financier at a high stakes poker game."},
	{"The Shawshank Redemption", []string{"drama"}, []string{"Frank Darabont"}, []string{"Tim Robbins", "Morgan Freeman"}, 1994,
		"Two imprisoned men bond over years and find redemption through acts of decency."},
	{"The Godfather", []string{"drama", "crime"}, []string{"Francis Ford Coppola"}, []string{"Marlon Brando", "Al Pacino"}, 1972,
		"The aging patriarch of a crime dynasty hands control to his reluctant son."},
	{"Parasite", []string{"drama", "thriller"}, []string{"Bong Joon-ho"}, []string{"Song Kang-ho", "Choi Woo-shik"}, 2019,
		"A poor family schemes its way into the household of a wealthy one, with shocking results."},
	{"Moonlight", []string{"drama"}, []string{"Barry Jenkins"}, []string{"Mahershala Ali", "Trevante Rhodes"}, 2016,
		"Three chapters in the life of a young man growing up in Miami."},
	{"Whiplash", []string{"drama", "music"}, []string{"Damien Chazelle"}, []string{"Miles Teller", "J.K. Simmons"}, 2014,
		"A young drummer is pushed to the edge by a ruthless conservatory instructor."},
	{"La La Land", []string{"romance", "music"}, []string{"Damien Chazelle"}, []string{"Ryan Gosling", "Emma Stone"}, 2016,
		"A jazz pianist and an aspiring actress fall in love while chasing their dreams in Los Angeles."},
	{"Superbad", []string{"comedy"}, []string{"Greg Mottola"}, []string{"Jonah Hill", "Michael Cera"}, 2007,
		"Two codependent high school seniors try to make the most of one last party."},
	{"Hot Fuzz", []string{"comedy", "action"}, []string{"Edgar Wright"}, []string{"Simon Pegg", "Nick Frost"}, 2007,
		"A top London cop is reassigned to a quiet village hiding a sinister secret."},
	{"Shaun of the Dead", []string{"comedy", "horror"}, []string{"Edgar Wright"}, []string{"Simon Pegg", "Nick Frost"}, 2004,
		"A slacker tries to win back his girlfriend in the middle of a zombie apocalypse."},
	{"Groundhog Day", []string{"comedy", "romance"}, []string{"Harold Ramis"}, []string{"Bill Murray", "Andie MacDowell"}, 1993,
		"A cynical weatherman relives the same day over and over again."},
	{"The Grand Budapest Hotel", []string{"comedy", "drama"}, []string{"Wes Anderson"}, []string{"Ralph Fiennes", "Tony Revolori"}, 2014,
		"A legendary concierge and his lobby boy are caught up in the theft of a priceless painting."},
	{"Se7en", []string{"thriller", "crime"}, []string{"David Fincher"}, []string{"Brad Pitt", "Morgan Freeman"}, 1995,
		"Two detectives hunt a serial killer who uses the seven deadly sins as his motive."},
	{"Gone Girl", []string{"thriller", "drama"}, []string{"David Fincher"}, []string{"Ben Affleck", "Rosamund Pike"}, 2014,
		"A husband becomes the prime suspect when his wife disappears on their anniversary."},
	{"Zodiac", []string{"thriller", "crime"}, []string{"David Fincher"}, []string{"Jake Gyllenhaal", "Robert Downey Jr."}, 2007,
		"A cartoonist becomes obsessed with tracking down the Zodiac killer."},
	{"Prisoners", []string{"thriller", "drama"}, []string{"Denis Villeneuve"}, []string{"Hugh Jackman", "Jake Gyllenhaal"}, 2013,
		"A desperate father takes matters into his own hands when his daughter goes missing."},
	{"Sicario", []string{"thriller", "crime"}, []string{"Denis Villeneuve"}, []string{"Emily Blunt", "Benicio del Toro"}, 2015,
		"An idealistic agent is enlisted into a covert war against a drug cartel."},
	{"Nightcrawler", []string{"thriller", "crime"}, []string{"Dan Gilroy"}, []string{"Jake Gyllenhaal", "Rene Russo"}, 2014,
		"A driven loner muscles into the world of crime journalism in Los Angeles."},
	{"The Silence of the Lambs", []string{"thriller", "horror"}, []string{"Jonathan Demme"}, []string{"Jodie Foster", "Anthony Hopkins"}, 1991,
		"A young FBI trainee seeks the help of an imprisoned cannibal to catch another killer."},
	{"Get Out", []string{"horror", "thriller"}, []string{"Jordan Peele"}, []string{"Daniel Kaluuya", "Allison Williams"}, 2017,
		"A young man uncovers a disturbing secret when he meets his girlfriend's family."},
	{"Hereditary", []string{"horror", "drama"}, []string{"Ari Aster"}, []string{"Toni Collette", "Alex Wolff"}, 2018,
		"A grieving family is haunted by tragic and disturbing occurrences."},
	{"The Shining", []string{"horror"}, []string{"Stanley Kubrick"}, []string{"Jack Nicholson", "Shelley Duvall"}, 1980,
		"A writer wintering in an isolated hotel slowly descends into madness."},
	{"Blade Runner 2049", []string{"sci-fi", "drama"}, []string{"Denis Villeneuve"}, []string{"Ryan Gosling", "Harrison Ford"}, 2017,
		"A young blade runner unearths a secret that could plunge society into chaos."},
	{"Arrival", []string{"sci-fi", "drama"}, []string{"Denis Villeneuve"}, []string{"Amy Adams", "Jeremy Renner"}, 2016,
		"A linguist works to communicate with mysterious visitors before tensions lead to war."},
	{"Dune", []string{"sci-fi", "adventure"}, []string{"Denis Villeneuve"}, []string{"Timothee Chalamet", "Rebecca Ferguson"}, 2021,
		"A noble family becomes embroiled in a war for the most valuable planet in the galaxy."},
	{"Interstellar", []string{"sci-fi", "adventure"}, []string{"Christopher Nolan"}, []string{"Matthew McConaughey", "Anne Hathaway"}, 2014,
		"Explorers travel through a wormhole in space to ensure humanity's survival."},
	{"Inception", []string{"sci-fi", "action"}, []string{"Christopher Nolan"}, []string{"Leonardo DiCaprio", "Tom Hardy"}, 2010,
		"A thief who steals secrets through dreams is given the task of planting an idea."},
	{"The Matrix", []string{"sci-fi", "action"}, []string{"Lana Wachowski", "Lilly Wachowski"}, []string{"Keanu Reeves", "Carrie-Anne Moss"}, 1999,
		"A hacker learns the world he knows is a simulation and joins the rebellion against its machines."},
	{"Ex Machina", []string{"sci-fi", "thriller"}, []string{"Alex Garland"}, []string{"Domhnall Gleeson", "Alicia Vikander"}, 2014,
		"A programmer evaluates the human qualities of a breathtaking humanoid AI."},
	{"Alien", []string{"sci-fi", "horror"}, []string{"Ridley Scott"}, []string{"Sigourney Weaver", "Tom Skerritt"}, 1979,
		"The crew of a commercial spacecraft encounters a deadly lifeform."},
	{"Spirited Away", []string{"animation", "adventure"}, []string{"Hayao Miyazaki"}, []string{"Rumi Hiiragi", "Miyu Irino"}, 2001,
		"A girl wanders into a world ruled by gods and spirits and must free her parents."},
	{"Paddington 2", []string{"comedy", "family"}, []string{"Paul King"}, []string{"Ben Whishaw", "Hugh Grant"}, 2017,
		"A polite bear is framed for stealing a pop-up book and sent to prison."},
	{"Before Sunrise", []string{"romance", "drama"}, []string{"Richard Linklater"}, []string{"Ethan Hawke", "Julie Delpy"}, 1995,
		"Two strangers meet on a train and spend one night walking through Vienna."},
}

var memoryNotes = []string{
	"loves slow burn thrillers with a twist ending",
	"prefers movies under two hours on weeknights",
	"big fan of Denis Villeneuve",
	"does not enjoy horror movies",
	"likes feel good comedies on weekends",
	"enjoys space exploration stories",
	"watches romance movies with their partner",
	"wants more animated films for family night",
}

func Setup(ctx context.Context, pool *pgxpool.Pool) error {
	log := logging.Component("seed")
	rng := rand.New(rand.NewSource(42))

	// Truncate existing data before insert
	log.Info().Msg("truncating existing data")
	if _, err := pool.Exec(ctx, `
		TRUNCATE user_memories, item_embeddings, user_watch_history, content, users RESTART IDENTITY CASCADE
	`); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}

	log.Info().Int("count", userCount).Msg("inserting users")
	if err := seedUsers(ctx, pool, rng, userCount); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	log.Info().Int("count", len(catalog)).Msg("inserting content")
	if err := seedContent(ctx, pool, rng); err != nil {
		return fmt.Errorf("seed content: %w", err)
	}

	log.Info().Int("attempts", historyCount).Msg("inserting watch history")
	if err := seedWatchHistory(ctx, pool, rng, historyCount); err != nil {
		return fmt.Errorf("seed watch history: %w", err)
	}

	log.Info().Msg("inserting user memories")
	if err := seedMemories(ctx, repository.New(pool), rng); err != nil {
		return fmt.Errorf("seed memories: %w", err)
	}

	log.Info().Msg("seeding complete")
	return nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, rng *rand.Rand, n int) error {
	countries := []string{"US", "GB", "CA", "AU", "DE", "FR", "JP", "BR"}
	subscriptionTypes := []string{"free", "basic", "premium"}
	subscriptionWeights := []float64{0.5, 0.3, 0.2}

	rows := []string{}
	args := []any{}

	for range n {
		age := rng.Intn(48) + 18
		country := countries[rng.Intn(len(countries))]
		subscription := weightedChoice(rng, subscriptionTypes, subscriptionWeights)
		createdAt := time.Now().AddDate(0, 0, -rng.Intn(365))

		base := len(args)
		rows = append(rows, fmt.Sprintf("($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4))
		args = append(args, age, country, subscription, createdAt)
	}

	if len(rows) == 0 {
		return nil
	}

	query := "INSERT INTO users (age, country, subscription_type, created_at) VALUES " + strings.Join(rows, ", ")

	_, err := pool.Exec(ctx, query, args...)
	return err
}

func seedContent(ctx context.Context, pool *pgxpool.Pool, rng *rand.Rand) error {
	rows := []string{}
	args := []any{}

	for _, f := range catalog {
		// critic rating on 0-10, skewed towards the well-regarded end
		rating := math.Round((5.5+rng.Float64()*4.0)*10) / 10
		critic := math.Round(math.Min(100, rating*10+rng.NormFloat64()*8))
		audience := math.Round(math.Min(100, rating*10+rng.NormFloat64()*10))
		popularity := powerLawScore(rng)
		createdAt := time.Now().AddDate(0, 0, -rng.Intn(730))

		base := len(args)
		placeholders := make([]string, 11)
		for i := range placeholders {
			placeholders[i] = fmt.Sprintf("$%d", base+i+1)
		}
		rows = append(rows, "("+strings.Join(placeholders, ", ")+")")
		args = append(args, f.title, f.genres, rating, popularity, math.Max(0, critic), math.Max(0, audience),
			f.directors, f.cast, f.storyline, f.year, createdAt)
	}

	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO content (title, genres, rating, popularity_score, critic_score, audience_score,
		directors, cast_members, storyline, release_year, created_at) VALUES ` + strings.Join(rows, ", ")

	_, err := pool.Exec(ctx, query, args...)
	return err
}

// seedWatchHistory skews activity towards low user ids and popular items, and
// leaves some entries unwatched or unrated so every watchlist pattern shows up.
func seedWatchHistory(ctx context.Context, pool *pgxpool.Pool, rng *rand.Rand, n int) error {
	seen := make(map[[2]int64]bool)
	items := len(catalog)

	rows := []string{}
	args := []any{}

	for range n {
		userID := int64(math.Ceil(math.Pow(rng.Float64(), 1.5) * userCount))
		userID = max(1, min(userID, userCount))

		contentID := int64(math.Ceil(math.Pow(rng.Float64(), 1.3) * float64(items)))
		contentID = max(1, min(contentID, int64(items)))

		key := [2]int64{userID, contentID}
		if seen[key] {
			continue
		}
		seen[key] = true

		addedAt := time.Now().Add(-time.Duration(rng.Intn(180*24)) * time.Hour)

		var watchedAt *time.Time
		var rating *int
		if rng.Float64() < 0.75 {
			// most watches land within a couple of weeks, some within hours
			w := addedAt.Add(time.Duration(rng.ExpFloat64()*72) * time.Hour)
			if w.After(time.Now()) {
				w = time.Now()
			}
			watchedAt = &w
			if rng.Float64() < 0.8 {
				r := weightedStars(rng)
				rating = &r
			}
		}

		base := len(args)
		rows = append(rows, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5))
		args = append(args, userID, contentID, rating, addedAt, watchedAt)
	}

	if len(rows) == 0 {
		return nil
	}

	query := "INSERT INTO user_watch_history (user_id, content_id, rating, added_at, watched_at) VALUES " +
		strings.Join(rows, ", ")

	_, err := pool.Exec(ctx, query, args...)
	return err
}

type memoryWriter interface {
	AddMemory(ctx context.Context, userID int64, content string) error
}

// seedMemories gives each user zero to two taste notes.
func seedMemories(ctx context.Context, w memoryWriter, rng *rand.Rand) error {
	for userID := int64(1); userID <= userCount; userID++ {
		for range rng.Intn(3) {
			if err := w.AddMemory(ctx, userID, memoryNotes[rng.Intn(len(memoryNotes))]); err != nil {
				return err
			}
		}
	}
	return nil
}

func weightedStars(rng *rand.Rand) int {
	stars := []string{"1", "2", "3", "4", "5"}
	pick := weightedChoice(rng, stars, []float64{0.05, 0.1, 0.25, 0.35, 0.25})
	return int(pick[0] - '0')
}

func powerLawScore(rng *rand.Rand) float64 {
	u := rng.Float64()
	if u == 0 {
		u = 0.001
	}
	raw := math.Pow(u, 2.0)
	if raw < 0.01 {
		raw = 0.01
	}
	return math.Round(raw*100) / 100
}

func weightedChoice(rng *rand.Rand, choices []string, weights []float64) string {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	r := rng.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return choices[i]
		}
	}
	return choices[len(choices)-1]
}
