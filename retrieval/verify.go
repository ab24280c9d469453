package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/types"
)

const verifyPrompt = `Determine whether the document below contains information relevant to answering the question.
Answer with exactly "yes" or "no".

Question: %s

Document:
%s

Answer:`

// Verifier judges per-document relevance against the original (not rewritten)
// query with the fast model.
type Verifier struct {
	gateway *llm.Gateway
	// parseDefault is the verdict used when the model's output cannot be
	// parsed. A parse failure is indistinguishable from "no", so the
	// default is exclude; both behaviors existed upstream, hence the knob.
	parseDefault types.Verdict
	// maxDocChars truncates document text fed to the verification prompt.
	maxDocChars int
	logger      *zap.Logger
}

// NewVerifier creates a verifier. parseDefault empty means exclude on parse
// failure.
func NewVerifier(gateway *llm.Gateway, parseDefault types.Verdict, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if parseDefault == "" {
		parseDefault = types.VerdictNo
	}
	return &Verifier{
		gateway:      gateway,
		parseDefault: parseDefault,
		maxDocChars:  4000,
		logger:       logger.With(zap.String("component", "doc_verifier")),
	}
}

// Verify returns whether the section should be kept for the question.
// Provider errors and unparsable outputs resolve to the configured default
// rather than propagating.
func (v *Verifier) Verify(ctx context.Context, question string, section types.RetrievedSection) types.Verdict {
	doc := section.Text()
	if len(doc) > v.maxDocChars {
		doc = doc[:v.maxDocChars]
	}

	messages := []llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf(verifyPrompt, question, doc)},
	}
	text, err := v.gateway.Invoke(ctx, llm.HandleFast, messages)
	if err != nil {
		v.logger.Debug("verification call failed, applying default",
			zap.String("document_id", section.DocumentID),
			zap.String("default", string(v.parseDefault)),
			zap.Error(err),
		)
		return v.parseDefault
	}

	verdict, err := llm.ParseVerdict(text)
	if err != nil {
		v.logger.Debug("verification output unparsable, applying default",
			zap.String("document_id", section.DocumentID),
			zap.String("default", string(v.parseDefault)),
		)
		return v.parseDefault
	}
	return verdict
}
