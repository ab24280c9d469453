package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/answerflow/graph"
	"github.com/BaSui01/answerflow/search"
	"github.com/BaSui01/answerflow/testutil/mocks"
	"github.com/BaSui01/answerflow/types"
)

// excelProvider scripts the full multi-step run for the canonical two-part
// question. Routes are matched in registration order, most specific prompt
// kind first.
func excelProvider() *mocks.MockProvider {
	return mocks.NewMockProvider().
		WithRoute("adequately addresses", "yes").
		WithRoute("Decompose the question below",
			`[{"question":"Who created Excel?","search_query":"Excel creator"},
			  {"question":"What other products did they make?","search_query":"Microsoft products list"}]`).
		WithRoute("Write a complete answer",
			"Microsoft made Excel. Beyond Excel, Microsoft also created Word and PowerPoint.").
		WithRoute("Question: Who created Excel", "Microsoft created Excel.").
		WithRoute("Question: What other products", "They also made Word and PowerPoint.").
		WithRoute("Excel in 1985", "yes").
		WithRoute("Word and PowerPoint", "yes").
		WithResponse("no")
}

func excelSearcher() *mocks.MockSearcher {
	excelDoc := mocks.Section("doc-excel", "Microsoft released Excel in 1985.", 0.9)
	officeDoc := mocks.Section("doc-office", "Microsoft also built Word and PowerPoint.", 0.8)
	return mocks.NewMockSearcher().
		WithRoute("Excel creator", excelDoc).
		WithRoute("Microsoft products list", officeDoc).
		WithSections(excelDoc, officeDoc) // initial retrieval on the full question
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retrieval.RewriteCount = 0 // one variant per query keeps routing deterministic
	return cfg
}

const excelQuestion = "Who made Excel and what other products did they make?"

// TestRunToCompletionExcel verifies the whole pipeline end to end: both
// sub-questions answered and accepted, answer mentions the sibling products,
// citations cover both documents.
func TestRunToCompletionExcel(t *testing.T) {
	r := NewRunner(testConfig(), testGateway(excelProvider()), excelSearcher())

	final, err := r.RunToCompletion(context.Background(), excelQuestion, search.Filters{})
	require.NoError(t, err)

	assert.NotEmpty(t, final.RunID)
	assert.Equal(t, excelQuestion, final.Question)
	assert.Contains(t, final.Answer(), "Excel")
	assert.Contains(t, final.Answer(), "Word")
	assert.Contains(t, final.Answer(), "PowerPoint")

	require.Len(t, final.SubAnswers, 2)
	for _, sa := range final.SubAnswers {
		assert.Equal(t, types.VerdictYes, sa.Verdict, "sub-question %q", sa.Question.Text)
		assert.NotEmpty(t, sa.Answer)
	}

	ids := make([]string, 0, len(final.Citations))
	for _, c := range final.Citations {
		ids = append(ids, c.DocumentID)
	}
	assert.ElementsMatch(t, []string{"doc-excel", "doc-office"}, ids)
	assert.Greater(t, final.Elapsed.Nanoseconds(), int64(0))
}

// TestRunEventStream verifies the event protocol: lifecycle events, streamed
// deltas, and exactly one terminal final event.
func TestRunEventStream(t *testing.T) {
	r := NewRunner(testConfig(), testGateway(excelProvider()), excelSearcher())

	events, err := r.Run(context.Background(), excelQuestion, search.Filters{})
	require.NoError(t, err)

	var finals, errs, deltas, starts int
	var deltaText string
	for ev := range events {
		switch ev.Kind {
		case graph.EventFinal:
			finals++
		case graph.EventError:
			errs++
		case graph.EventDelta:
			deltas++
			deltaText += ev.Delta
		case graph.EventNodeStart:
			starts++
		}
	}

	assert.Equal(t, 1, finals)
	assert.Zero(t, errs)
	assert.Greater(t, deltas, 0)
	assert.Contains(t, deltaText, "Excel")
	assert.GreaterOrEqual(t, starts, 4) // decompose, retrieval, fan-out, aggregate, generate
}

// TestRunEmptyQuestion verifies input validation.
func TestRunEmptyQuestion(t *testing.T) {
	r := NewRunner(testConfig(), testGateway(excelProvider()), excelSearcher())

	_, err := r.Run(context.Background(), "", search.Filters{})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

// TestRunTotalDegradationStillFinal verifies a run where every model call
// and every search fails still terminates with a final answer payload.
func TestRunTotalDegradationStillFinal(t *testing.T) {
	provider := mocks.NewErrorProvider(errors.New("provider down"))
	searcher := mocks.NewMockSearcher().WithError(errors.New("index down"))

	r := NewRunner(testConfig(), testGateway(provider), searcher)

	final, err := r.RunToCompletion(context.Background(), excelQuestion, search.Filters{})
	require.NoError(t, err)

	assert.Empty(t, final.InitialAnswer)
	assert.Empty(t, final.Citations)
	// Decomposition degraded to the original question as the one branch.
	require.Len(t, final.SubAnswers, 1)
	assert.Equal(t, types.VerdictNo, final.SubAnswers[0].Verdict)
}

// TestRunNoGenerationOnEmptyRetrieval verifies sub-question branches with
// zero verified documents never issue a generation call.
func TestRunNoGenerationOnEmptyRetrieval(t *testing.T) {
	provider := mocks.NewMockProvider().
		WithRoute("Decompose the question below", `[{"question":"Who created Excel?","search_query":"Excel creator"}]`).
		WithRoute("Write a complete answer", "There is nothing in the context to answer this.").
		WithResponse("no")
	searcher := mocks.NewMockSearcher() // retrieves nothing, ever

	r := NewRunner(testConfig(), testGateway(provider), searcher)

	final, err := r.RunToCompletion(context.Background(), excelQuestion, search.Filters{})
	require.NoError(t, err)
	require.Len(t, final.SubAnswers, 1)
	assert.Empty(t, final.SubAnswers[0].Answer)

	for _, call := range provider.GetCalls() {
		assert.NotContains(t, call.Prompt(), "using only the documents")
	}
}

// TestRunDeepenPass verifies the quality gate triggers the second
// decomposition pass and the refined answer supersedes the initial one.
func TestRunDeepenPass(t *testing.T) {
	provider := mocks.NewMockProvider().
		// Initial answer graded inadequate; sub-answer grades stay yes by
		// matching on the sub-answer text instead of the shared template.
		WithRoute("Answer: Microsoft made Excel", "no").
		WithRoute("adequately addresses", "yes").
		WithRoute("Decompose the question below",
			`[{"question":"Who created Excel?","search_query":"Excel creator"}]`).
		WithRoute("did not produce a satisfying answer",
			`[{"question":"What other products did they make?","search_query":"Microsoft products list"}]`).
		WithRoute("Write a complete answer",
			"Microsoft made Excel. Beyond Excel, Microsoft also created Word and PowerPoint.").
		WithRoute("Question: Who created Excel", "Microsoft created Excel.").
		WithRoute("Question: What other products", "They also made Word and PowerPoint.").
		WithRoute("Excel in 1985", "yes").
		WithRoute("Word and PowerPoint", "yes").
		WithResponse("no")

	cfg := testConfig()
	cfg.EnableDeepen = true
	r := NewRunner(cfg, testGateway(provider), excelSearcher())

	final, err := r.RunToCompletion(context.Background(), excelQuestion, search.Filters{})
	require.NoError(t, err)

	assert.Equal(t, types.VerdictNo, final.Verdict)
	assert.NotEmpty(t, final.DeepAnswer)
	assert.Equal(t, final.DeepAnswer, final.Answer())
	// Both passes' sub-answers accumulate.
	assert.Len(t, final.SubAnswers, 2)
	// The second pass retrieved the office document too.
	hasOffice := false
	for _, c := range final.Citations {
		if c.DocumentID == "doc-office" {
			hasOffice = true
		}
	}
	assert.True(t, hasOffice)
}

// TestRunDeepenSkippedWhenAdequate verifies an adequate initial answer skips
// the second pass entirely.
func TestRunDeepenSkippedWhenAdequate(t *testing.T) {
	provider := excelProvider() // grades everything "yes"
	cfg := testConfig()
	cfg.EnableDeepen = true
	r := NewRunner(cfg, testGateway(provider), excelSearcher())

	final, err := r.RunToCompletion(context.Background(), excelQuestion, search.Filters{})
	require.NoError(t, err)

	assert.Equal(t, types.VerdictYes, final.Verdict)
	assert.Empty(t, final.DeepAnswer)
	for _, call := range provider.GetCalls() {
		assert.NotContains(t, call.Prompt(), "did not produce a satisfying answer")
	}
}

// TestRunExtractionBranch verifies the optional extraction branch feeds the
// final prompt.
func TestRunExtractionBranch(t *testing.T) {
	provider := excelProvider().
		WithRoute("entities and relationships", "Microsoft -> made -> Excel")
	cfg := testConfig()
	cfg.EnableExtraction = true
	r := NewRunner(cfg, testGateway(provider), excelSearcher())

	final, err := r.RunToCompletion(context.Background(), excelQuestion, search.Filters{})
	require.NoError(t, err)
	assert.NotEmpty(t, final.Answer())

	// The synthesis prompt carried the extracted entities.
	found := false
	for _, call := range provider.GetCalls() {
		p := call.Prompt()
		if strings.Contains(p, "Write a complete answer") && strings.Contains(p, "Microsoft -> made -> Excel") {
			found = true
		}
	}
	assert.True(t, found, "final prompt should include the entity block")
}

// TestRunNonStreamingFinal verifies StreamFinal=false produces the answer
// without delta events.
func TestRunNonStreamingFinal(t *testing.T) {
	cfg := testConfig()
	cfg.StreamFinal = false
	r := NewRunner(cfg, testGateway(excelProvider()), excelSearcher())

	events, err := r.Run(context.Background(), excelQuestion, search.Filters{})
	require.NoError(t, err)

	var final *FinalAnswer
	deltas := 0
	for ev := range events {
		switch ev.Kind {
		case graph.EventDelta:
			deltas++
		case graph.EventFinal:
			final = ev.Payload.(*FinalAnswer)
		}
	}
	require.NotNil(t, final)
	assert.Zero(t, deltas)
	assert.Contains(t, final.Answer(), "Excel")
}
