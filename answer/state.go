package answer

import (
	"github.com/BaSui01/answerflow/graph"
	"github.com/BaSui01/answerflow/search"
	"github.com/BaSui01/answerflow/types"
)

// State channel names. The document pool and sub-answer channels use
// commutative reducers (union by document ID, list append) so fan-in order
// never changes the merged result.
const (
	chanSubQuestions = "sub_questions"
	chanSubAnswers   = "sub_answers"
	chanPool         = "document_pool"
	chanEntities     = "entities"
	chanFinalPrompt  = "final_prompt"
	chanAnswer       = "answer"
	chanDeepAnswer   = "deep_answer"
	chanLog          = "log"
)

// newRunState builds the working memory for one run. Created once at
// invocation, discarded when the run (including an optional deep pass over
// the same state) terminates.
func newRunState(tieBreak types.TieBreak) *graph.State {
	st := graph.NewState()

	graph.Define(st, chanSubQuestions, []types.SubQuestion(nil), graph.LastValueReducer[[]types.SubQuestion]())
	graph.Define(st, chanSubAnswers, []types.SubQuestionAnswer(nil), graph.AppendReducer[types.SubQuestionAnswer]())
	graph.Define(st, chanPool, search.NewSectionPool(tieBreak),
		graph.MergeReducer(func(current, update *search.SectionPool) *search.SectionPool {
			current.Merge(update)
			return current
		}))
	graph.Define(st, chanEntities, "", graph.LastValueReducer[string]())
	graph.Define(st, chanFinalPrompt, "", graph.LastValueReducer[string]())
	graph.Define(st, chanAnswer, "", graph.LastValueReducer[string]())
	graph.Define(st, chanDeepAnswer, "", graph.LastValueReducer[string]())
	graph.Define(st, chanLog, []string(nil), graph.AppendReducer[string]())

	return st
}

// poolOf wraps a section list in a fresh pool so a branch can contribute a
// partial pool update without touching the shared one.
func poolOf(tieBreak types.TieBreak, sections []types.RetrievedSection) *search.SectionPool {
	p := search.NewSectionPool(tieBreak)
	p.AddAll(sections)
	return p
}
