package rewrite

import "fmt"

// systemPrompt instructs the model to rework French HTML content while
// keeping tags and structure intact, and to answer with the single-key
// JSON object the structured-response contract expects.
const systemPrompt = "Tu es un assistant qui reformule du contenu HTML en français. " +
	"Tu conserves toutes les balises et la structure, tout en modifiant " +
	"les phrases pour éviter le contenu dupliqué. " +
	"Respecte strictement le format de sortie JSON contenant une seule " +
	"clé 'rewritten_html'."

// userPrompt wraps the original column value in the rewriting instruction.
func userPrompt(content string) string {
	return fmt.Sprintf(
		"Réécris le texte HTML suivant en français en conservant toutes les balises et le sens global. "+
			"Varie la formulation pour éviter le contenu dupliqué, mais ne supprime aucune information utile.\n\n"+
			"Texte d'origine:\n%s", content)
}
