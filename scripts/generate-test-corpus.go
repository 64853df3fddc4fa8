//go:build ignore

// Package main generates a synthetic movie-plot corpus and a matching
// query set for "ragpipe eval".
// Usage: go run scripts/generate-test-corpus.go -movies 1000 -output testdata/bench
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	numMovies = flag.Int("movies", 1000, "Number of CSV rows to generate")
	numNotes  = flag.Int("notes", 50, "Number of markdown notes to generate")
	numQuery  = flag.Int("queries", 25, "Number of eval queries to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var (
	heroes   = []string{"a retired detective", "a young pilot", "an exiled princess", "a billionaire engineer", "a timid clownfish", "a rogue android", "a village healer", "a disgraced chef"}
	goals    = []string{"recover a stolen relic", "stop a rogue satellite", "find a missing son", "win a cooking contest", "escape a flooded city", "expose a corrupt senator", "tame a dragon", "rebuild a broken orchestra"}
	places   = []string{"in neon-lit Tokyo", "across the frozen tundra", "beneath the ocean", "on a distant moon", "in a haunted manor", "along the Silk Road", "inside a collapsing casino", "at a remote lighthouse"}
	twists   = []string{"only to learn the mentor was the traitor", "while a storm cuts every road", "with a powered metal suit", "helped by a talking raven", "as time loops every midnight", "before the last train leaves"}
	genres   = []string{"Drama", "Thriller", "Comedy", "Adventure", "Science Fiction", "Fantasy"}
	topics   = []string{"potassium", "photosynthesis", "tidal energy", "sourdough", "glaciers", "migratory birds", "volcanoes", "honeybees"}
	adjectiv = []string{"Silent", "Crimson", "Last", "Hidden", "Broken", "Golden", "Midnight", "Iron"}
	nouns    = []string{"Harbor", "Crown", "Signal", "Garden", "Engine", "Tide", "Promise", "Frontier"}
)

type querySpec struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name,omitempty"`
	Query    string   `yaml:"query"`
	Expected []string `yaml:"expected"`
}

type querySet struct {
	Queries  []querySpec `yaml:"queries"`
	Negative []querySpec `yaml:"negative"`
}

func main() {
	flag.Parse()
	rand.Seed(*seed)

	if err := os.MkdirAll(filepath.Join(*outputDir, "notes"), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generating %d movies and %d notes in %s...\n", *numMovies, *numNotes, *outputDir)

	plots, err := writeMovies(filepath.Join(*outputDir, "movies.csv"), *numMovies)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write movies: %v\n", err)
		os.Exit(1)
	}
	for i := 0; i < *numNotes; i++ {
		if err := writeNote(i); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write note %d: %v\n", i, err)
			os.Exit(1)
		}
	}
	if err := writeQueries(filepath.Join(*outputDir, "queries.yaml"), plots); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write queries: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Done. Evaluate with:")
	fmt.Printf("  ragpipe eval --queries %s --docs %s\n",
		filepath.Join(*outputDir, "queries.yaml"), *outputDir)
}

func randomWord(pool []string) string {
	return pool[rand.Intn(len(pool))]
}

// writeMovies writes a CSV shaped like the Wikipedia movie plots dataset
// and returns the generated plots.
func writeMovies(path string, n int) ([]string, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Release Year", "Title", "Genre", "Plot"}); err != nil {
		return nil, err
	}

	plots := make([]string, n)
	for i := 0; i < n; i++ {
		hero := randomWord(heroes)
		plots[i] = fmt.Sprintf("%s must %s %s, %s.",
			strings.ToUpper(hero[:1])+hero[1:],
			randomWord(goals), randomWord(places), randomWord(twists))
		title := fmt.Sprintf("The %s %s %d", randomWord(adjectiv), randomWord(nouns), i)
		year := fmt.Sprint(1950 + rand.Intn(75))
		if err := w.Write([]string{year, title, randomWord(genres), plots[i]}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return plots, w.Error()
}

func writeNote(index int) error {
	topic := randomWord(topics)
	body := fmt.Sprintf("# Notes on %s\n\nThese notes cover %s in everyday terms.\n\n"+
		"Entry %d records how %s changes with the seasons and why it matters.\n",
		topic, topic, index, topic)
	name := fmt.Sprintf("%s_%d.md", strings.ReplaceAll(topic, " ", "_"), index)
	return os.WriteFile(filepath.Join(*outputDir, "notes", name), []byte(body), 0644)
}

// writeQueries samples plots and asks for each by its goal and place.
func writeQueries(path string, plots []string) error {
	set := querySet{
		Negative: []querySpec{
			{ID: "N1", Name: "punctuation", Query: "?!?"},
			{ID: "N2", Name: "unrelated", Query: "quarterly tax filing deadline"},
		},
	}
	for i := 0; i < *numQuery && len(plots) > 0; i++ {
		plot := plots[rand.Intn(len(plots))]
		// Drop the hero so the query paraphrases rather than copies.
		rest := plot[strings.Index(plot, " must ")+len(" must "):]
		set.Queries = append(set.Queries, querySpec{
			ID:       fmt.Sprintf("Q%d", i+1),
			Query:    strings.TrimSuffix(rest, "."),
			Expected: []string{plot},
		})
	}

	data, err := yaml.Marshal(set)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
