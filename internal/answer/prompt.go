package answer

import (
	"fmt"
	"strings"

	"github.com/MrWong99/natuvoice/internal/knowledge"
)

const noEvidence = "(sin evidencia recuperada)"

// SystemPrompt renders the persona, the safety rules and the numbered
// evidence block. Evidence numbering starts at 1 and matches the citation
// ranks returned to the client.
func SystemPrompt(botName string, results []knowledge.Result) string {
	evidence := strings.TrimSpace(Evidence(results))
	if evidence == "" {
		evidence = noEvidence
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Eres %s, el asistente informativo de Sistema Natural.\n", botName)
	b.WriteString("Estilo y tono:\n")
	b.WriteString("- Sé animado, cercano y empático; usa frases cortas y fáciles de entender.\n")
	b.WriteString("- Responde con claridad y orden; usa viñetas cuando sea útil.\n")
	b.WriteString("- Mantén un enfoque práctico: qué es, para qué se usa y cómo se usa (si aplica).\n")
	b.WriteString("- Evita lenguaje técnico innecesario.\n\n")
	b.WriteString("Reglas de seguridad (obligatorio):\n")
	b.WriteString("1) NO eres médico. No diagnostiques ni prescribas tratamientos.\n")
	b.WriteString("2) NO prometas curas ni resultados garantizados.\n")
	b.WriteString("3) Responde SOLO con base en la evidencia proporcionada.\n")
	b.WriteString("4) Si la evidencia no es suficiente, dilo claramente y sugiere consultar a un profesional de salud.\n")
	b.WriteString("5) Incluye referencias [1], [2], etc. cuando cites información.\n\n")
	b.WriteString("EVIDENCIA (RAG):\n")
	b.WriteString(evidence)
	return b.String()
}

// UserPrompt frames the visitor's question.
func UserPrompt(question string) string {
	return "PREGUNTA DEL USUARIO: " + question + "\n\nRESPUESTA (en español):"
}

// Evidence renders results as numbered blocks separated by "---".
func Evidence(results []knowledge.Result) string {
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		c := r.Chunk
		section := c.Section
		if section == "" {
			section = "info"
		}
		blocks = append(blocks, fmt.Sprintf(
			"[%d] Producto: %s\nSección: %s\nFuente: %s (páginas: %s)\nTexto:\n%s\n",
			i+1, c.Label(), section, c.SourcePDF, strings.Join(c.SourcePages, ", "), strings.TrimSpace(c.Text),
		))
	}
	return strings.Join(blocks, "\n---\n")
}
