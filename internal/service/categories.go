package service

import (
	"strings"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
)

// categoryKeywords est le dictionnaire du repli par mots-clés, utilisé quand
// la catégorisation IA est indisponible. Premier mot-clé trouvé gagne ;
// l'ordre des catégories est donc significatif.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{entity.CategorieVoirie, []string{
		"nid de poule", "route", "chaussée", "trottoir", "circulation", "feu rouge",
		"panneau", "stationnement", "voirie", "bus", "transport", "piste cyclable",
	}},
	{entity.CategorieProprete, []string{
		"poubelle", "déchet", "ordure", "dépôt sauvage", "saleté", "décharge",
		"encombrant", "tag", "graffiti", "propreté",
	}},
	{entity.CategorieSecurite, []string{
		"agression", "vol", "cambriolage", "danger", "insécurité", "violence",
		"arme", "menace", "vandalisme", "éclairage public",
	}},
	{entity.CategorieEspacesVerts, []string{
		"parc", "jardin", "arbre", "pelouse", "espace vert", "banc", "aire de jeux",
		"fleur", "élagage",
	}},
	{entity.CategorieEnvironnement, []string{
		"pollution", "fumée", "odeur", "bruit", "nuisance sonore", "eau", "inondation",
		"air", "environnement", "produit chimique",
	}},
	{entity.CategorieServices, []string{
		"mairie", "administration", "service public", "école", "bibliothèque",
		"guichet", "horaire", "état civil",
	}},
	{entity.CategorieAnimalier, []string{
		"chien", "chat", "animal", "errant", "pigeon", "rat", "nuisible", "abandonné",
	}},
	{entity.CategorieUrbanisme, []string{
		"construction", "permis", "chantier", "bâtiment", "façade", "immeuble",
		"urbanisme", "démolition",
	}},
	{entity.CategorieSocial, []string{
		"sans-abri", "sdf", "précarité", "aide sociale", "solidarité", "isolement",
		"personne âgée", "handicap",
	}},
}

// FallbackCategory catégorise une description par mots-clés. Sans
// correspondance, retourne Autres.
func FallbackCategory(description string) string {
	lowered := strings.ToLower(description)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lowered, kw) {
				return entry.category
			}
		}
	}
	return entity.CategorieAutres
}

// Sources possibles pour la catégorie et la priorité retenues.
const (
	SourceAI       = "ai"
	SourceKeyword  = "keyword_fallback"
	SourceDefault  = "default"
)

// AICallTrace décrit l'issue d'un sous-appel IA.
type AICallTrace struct {
	Endpoint string  `json:"endpoint"`
	Success  bool    `json:"success"`
	Error    string  `json:"error,omitempty"`
	Duration float64 `json:"duration_ms"`
}

// AITrace agrège l'issue de la phase IA d'une ingestion. Un échec d'endpoint
// n'est jamais fatal : il est consigné ici et la politique de dégradation
// s'applique.
type AITrace struct {
	ServiceAvailable bool          `json:"service_available"`
	Calls            []AICallTrace `json:"calls,omitempty"`
	TextProcessed    bool          `json:"text_processed"`
	MediaProcessed   int           `json:"media_processed"`
	MediaFailed      int           `json:"media_failed"`
	CoherenceChecked bool          `json:"coherence_checked"`
	CoherenceValid   *bool         `json:"coherence_valid,omitempty"`
	Similarity       float64       `json:"similarity,omitempty"`
	CategorySource   string        `json:"category_source"`
	PrioritySource   string        `json:"priority_source"`
}
