package augment

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/shared/testutil"
	"finsight/pkg/contracts/domain"
)

type fixedSynonyms map[string][]string

func (f fixedSynonyms) Candidates(word string) []string {
	return f[strings.ToLower(word)]
}

func TestThesaurus_Candidates(t *testing.T) {
	th := &Thesaurus{entries: map[string][]string{}}
	th.Add("Gain", "profit", "a1b", "ok", "gain", "take_over", "advance")
	th.Add("buy", "take over", "snap up")

	assert.Equal(t, []string{"advance", "profit"}, th.Candidates("gain"))
	assert.Equal(t, []string{"advance", "profit"}, th.Candidates("GAIN"))
	assert.Equal(t, []string{"snap up", "take over"}, th.Candidates("buy"))
	assert.Empty(t, th.Candidates("unknown"))
	assert.Equal(t, 2, th.Len())
}

func TestLoadThesaurus(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "thesaurus.yaml",
		"upgrade:\n  - raise\n  - lift\nrose:\n  - surged\n")

	th, err := LoadThesaurus(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"lift", "raise"}, th.Candidates("upgrade"))
	assert.Contains(t, th.Candidates("rose"), "surged")
	assert.Contains(t, th.Candidates("rose"), "climbed")

	_, err = LoadThesaurus(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := testutil.WriteFile(t, t.TempDir(), "bad.yaml", "- just\n- a list\n")
	_, err = LoadThesaurus(bad)
	assert.Error(t, err)
}

func TestMatchCase(t *testing.T) {
	assert.Equal(t, "climbed", matchCase("rose", "climbed"))
	assert.Equal(t, "Climbed", matchCase("Rose", "climbed"))
	assert.Equal(t, "CLIMBED", matchCase("ROSE", "climbed"))
}

func TestAugmenter_NoChanges(t *testing.T) {
	a := NewAugmenter(Options{Seed: 1})
	assert.Equal(t, "Revenue rose 5% in the quarter.", a.AugmentText("Revenue rose 5% in the quarter."))
	assert.Equal(t, "Profit doubled", a.AugmentText("<p>Profit doubled</p>"))
}

func TestAugmenter_DeleteKeepsProtectedTokens(t *testing.T) {
	a := NewAugmenter(Options{Seed: 1, DeleteProb: 1})
	assert.Equal(t, "EPS 5% Q3 million.", a.AugmentText("EPS rose 5% in Q3 to one million."))
}

func TestAugmenter_Replace(t *testing.T) {
	a := NewAugmenter(Options{
		Seed:        7,
		ReplaceProb: 1,
		Synonyms:    fixedSynonyms{"rose": {"climbed"}, "eps": {"gain"}},
	})
	assert.Equal(t, "Revenue climbed, EPS steady", a.AugmentText("Revenue rose, EPS steady"))
	assert.Equal(t, "Climbed", a.Synonym("Rose"))
	assert.Equal(t, "EPS", a.Synonym("EPS"))
}

func TestAugmenter_SeedIsDeterministic(t *testing.T) {
	text := "The company reported strong growth and expects higher demand next quarter"
	opts := Options{Seed: 42, ReplaceProb: 0.5, DeleteProb: 0.2}

	first := NewAugmenter(opts).AugmentText(text)
	second := NewAugmenter(opts).AugmentText(text)
	assert.Equal(t, first, second)
}

func TestAugmenter_AugmentRecordLongText(t *testing.T) {
	a := NewAugmenter(Options{Seed: 3, ReplaceProb: 1, DeleteProb: 1})
	words := strings.Repeat("growth ", LongTextRunes/7+10)
	runes := []rune(words)
	tail := string(runes[LightPassRunes:])

	out := a.AugmentRecord(domain.TextRecord{Text: words, SourceFile: "big.txt"})
	require.True(t, strings.HasSuffix(out.Text, tail))
	prefix := strings.TrimSuffix(out.Text, tail)
	assert.NotEqual(t, string(runes[:LightPassRunes]), prefix)
	assert.Equal(t, "big.txt", out.SourceFile)
	assert.Equal(t, domain.AugmentationSynonymReplaceDelete, out.AugmentationType)
}

func TestStage_Run(t *testing.T) {
	dir := t.TempDir()
	input := testutil.WriteFile(t, dir, "merged_dataset.jsonl",
		`{"text":"Revenue rose sharply","source_file":"a.txt","extra":1}`+"\n"+
			`{"text":"   "}`+"\n"+
			`{broken`+"\n"+
			`{"text":"Profit fell"}`+"\n")
	output := filepath.Join(dir, "augmented_dataset.jsonl")

	logger, _ := testutil.NewTestLogger(t)
	stage := NewStage(NewAugmenter(Options{Seed: 42, Ratio: 1}), nil, logger)

	summary, err := stage.Run(context.Background(), input, output)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.RecordsRead)
	assert.Equal(t, 1, summary.Malformed)
	assert.Equal(t, 1, summary.Empty)
	assert.Equal(t, 2, summary.Originals)
	assert.Equal(t, 2, summary.Augmented)
	assert.Equal(t, 4, summary.RecordsWritten)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, `{"text":"Revenue rose sharply","source_file":"a.txt","extra":1}`, lines[0])
	assert.Contains(t, lines[3], `"source_file":""`)

	records := testutil.ReadJSONL[domain.TextRecord](t, output)
	assert.Equal(t, domain.TextRecord{
		Text:             "Revenue rose sharply",
		SourceFile:       "a.txt",
		AugmentationType: domain.AugmentationSynonymReplaceDelete,
	}, records[1])
	assert.Equal(t, "Profit fell", records[3].Text)
	assert.True(t, records[3].IsAugmented())
}

func TestStage_Run_ZeroRatioCopiesInput(t *testing.T) {
	dir := t.TempDir()
	input := testutil.WriteFile(t, dir, "in.jsonl", "{\"text\":\"a\"}\n{\"text\":\"b\"}\n")
	output := filepath.Join(dir, "out.jsonl")

	summary, err := NewStage(NewAugmenter(Options{Seed: 1}), nil, nil).Run(context.Background(), input, output)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Augmented)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "{\"text\":\"a\"}\n{\"text\":\"b\"}\n", string(data))
}
