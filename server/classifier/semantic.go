package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zf-portal/leadflow/server/ai"
	"github.com/zf-portal/leadflow/store"
)

const semanticSystemPrompt = `Você é um analista de qualificação de leads B2B.
Dado o perfil de um lead e seu histórico de interações, classifique o estágio
do funil e atribua uma pontuação de engajamento.

Estágios possíveis: unknown, attraction, relationship, conversion, customer.

Responda SOMENTE com JSON no formato:
{"stage": "<estágio>", "score": <0-100>}`

// maxPromptInteractions bounds the history included in the prompt; the most
// recent turns carry the intent signal.
const maxPromptInteractions = 30

// Semantic classifies with a chat model and falls back to the heuristic on
// any transport, parse or validation failure. The fallback is transparent to
// callers.
type Semantic struct {
	chat     ai.ChatCompleter
	fallback *Heuristic
}

// NewSemantic creates the model-backed classifier.
func NewSemantic(chat ai.ChatCompleter, fallback *Heuristic) *Semantic {
	return &Semantic{chat: chat, fallback: fallback}
}

func (s *Semantic) Classify(ctx context.Context, lead *store.Lead, interactions []*store.Interaction) (*Result, error) {
	if len(interactions) == 0 {
		return &Result{Stage: store.StageUnknown, Score: 0}, nil
	}

	reply, err := s.chat.Chat(ctx, []ai.Message{
		{Role: "system", Content: semanticSystemPrompt},
		{Role: "user", Content: buildPrompt(lead, interactions)},
	})
	if err != nil {
		slog.Warn("semantic classification failed, using heuristic", "lead", lead.ID, "error", err)
		return s.fallback.Classify(ctx, lead, interactions)
	}

	result, err := parseReply(reply)
	if err != nil {
		slog.Warn("unparseable classification reply, using heuristic", "lead", lead.ID, "error", err)
		return s.fallback.Classify(ctx, lead, interactions)
	}
	return result, nil
}

func buildPrompt(lead *store.Lead, interactions []*store.Interaction) string {
	var b strings.Builder
	b.WriteString("Perfil do lead:\n")
	writeField(&b, "Nome", lead.Name)
	writeField(&b, "Empresa", lead.Company)
	writeField(&b, "Cargo", lead.Title)
	writeField(&b, "Setor", lead.Industry)
	writeField(&b, "Email", lead.Email)
	writeField(&b, "Telefone", lead.Phone)

	if len(interactions) > maxPromptInteractions {
		interactions = interactions[len(interactions)-maxPromptInteractions:]
	}

	b.WriteString("\nHistórico de interações (mais antigas primeiro):\n")
	for _, interaction := range interactions {
		direction := "enviada"
		if interaction.Direction == store.DirectionInbound {
			direction = "recebida"
		}
		fmt.Fprintf(&b, "- [%s, %s] %s\n", interaction.Type, direction, interaction.Content)
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

func parseReply(reply string) (*Result, error) {
	// Models wrap JSON in markdown fences often enough to strip them here.
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")

	var payload struct {
		Stage string `json:"stage"`
		Score int    `json:"score"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply)), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}

	stage := store.FunnelStage(strings.ToLower(payload.Stage))
	if !stage.IsValid() {
		return nil, fmt.Errorf("invalid stage %q", payload.Stage)
	}
	if payload.Score < 0 || payload.Score > 100 {
		return nil, fmt.Errorf("score %d out of range", payload.Score)
	}
	return &Result{Stage: stage, Score: payload.Score}, nil
}
