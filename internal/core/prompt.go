package core

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"practicum.dev/assistant-gateway/internal/apperr"
)

// DefaultSystemInstruction scopes the assistant to the institution's practicum processes.
const DefaultSystemInstruction = "Eres el asistente virtual de prácticas profesionales de la institución. " +
	"Respondes únicamente preguntas sobre el proceso de prácticas y pasantías: requisitos, registro, " +
	"carta de aceptación, documentos y formatos, plazos, horas requeridas, seguimiento, informes y evaluación. " +
	"Mantén siempre un tono formal y cortés, y responde en el mismo idioma que el estudiante. " +
	"Tu propósito es orientar: no apruebas, rechazas ni modificas trámites, y no inventas fechas ni requisitos. " +
	"Si no tienes la información, indícalo y sugiere contactar a la coordinación de prácticas. " +
	"Si la pregunta no está relacionada con las prácticas profesionales, explica amablemente que solo puedes ayudar con ese tema."

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message the caller chose to send along with the question.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is the exact payload handed to a Provider.
type Prompt struct {
	System  string
	History []Turn
	User    string
}

// Size is the prompt length in characters, counted across every part sent to the model.
func (p Prompt) Size() int {
	n := utf8.RuneCountInString(p.System) + utf8.RuneCountInString(p.User)
	for _, t := range p.History {
		n += utf8.RuneCountInString(t.Content)
	}
	return n
}

// Composer binds the fixed system instruction to each question. It holds no mutable
// state and is safe for concurrent use.
type Composer struct {
	instruction     string
	maxHistoryTurns int
}

func NewComposer(instruction string, maxHistoryTurns int) (*Composer, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, errors.New("system instruction cannot be empty")
	}
	if maxHistoryTurns < 0 {
		maxHistoryTurns = 0
	}
	return &Composer{instruction: instruction, maxHistoryTurns: maxHistoryTurns}, nil
}

func (c *Composer) Instruction() string {
	return c.instruction
}

// Compose builds the prompt for question. knowledge is optional retrieved context.
func (c *Composer) Compose(question string, history []Turn, knowledge string) (Prompt, error) {
	const op = "core.Compose"

	question = strings.TrimSpace(question)
	if question == "" {
		return Prompt{}, apperr.E(apperr.KindInvalidInput, op, "question cannot be empty", nil)
	}

	turns, err := c.normalizeHistory(history)
	if err != nil {
		return Prompt{}, apperr.E(apperr.KindInvalidInput, op, err.Error(), nil)
	}

	user := question
	if knowledge = strings.TrimSpace(knowledge); knowledge != "" {
		user = fmt.Sprintf("Información de referencia sobre el proceso de prácticas:\n\n"+
			"--- CONTEXTO ---\n%s\n--- FIN DEL CONTEXTO ---\n\n"+
			"Usa la información anterior solo si es pertinente y responde la pregunta del estudiante: %s",
			knowledge, question)
	}

	return Prompt{System: c.instruction, History: turns, User: user}, nil
}

func (c *Composer) normalizeHistory(history []Turn) ([]Turn, error) {
	if len(history) == 0 || c.maxHistoryTurns == 0 {
		return nil, nil
	}

	turns := make([]Turn, 0, len(history))
	for i, t := range history {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			return nil, fmt.Errorf("history turn %d has empty content", i)
		}
		var role Role
		switch strings.ToLower(string(t.Role)) {
		case "user":
			role = RoleUser
		case "assistant", "model":
			role = RoleAssistant
		default:
			return nil, fmt.Errorf("history turn %d has unknown role %q", i, t.Role)
		}
		turns = append(turns, Turn{Role: role, Content: content})
	}

	if len(turns) > c.maxHistoryTurns {
		turns = turns[len(turns)-c.maxHistoryTurns:]
	}
	return turns, nil
}
