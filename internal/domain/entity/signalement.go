package entity

import "time"

// SignalementStatus définit l'état du cycle de vie d'un signalement.
type SignalementStatus string

const (
	StatusEnAttente SignalementStatus = "en_attente"
	StatusEnCours   SignalementStatus = "en_cours"
	StatusValider   SignalementStatus = "valider"
	StatusRejeter   SignalementStatus = "rejeter"
	StatusTerminer  SignalementStatus = "terminer"
)

// SignalementPriority est la priorité calculée par le service IA (ou Moyenne par défaut).
type SignalementPriority string

const (
	PriorityBasse   SignalementPriority = "Basse"
	PriorityMoyenne SignalementPriority = "Moyenne"
	PriorityHaute   SignalementPriority = "Haute"
)

// Catégories de signalement. La valeur vient du service IA de catégorisation
// ou du repli par mots-clés.
const (
	CategorieVoirie        = "Voirie & Transports"
	CategorieProprete      = "Propreté"
	CategorieSecurite      = "Sécurité"
	CategorieEspacesVerts  = "Espaces Verts"
	CategorieEnvironnement = "Environnement"
	CategorieServices      = "Services Publics"
	CategorieAnimalier     = "Animalier"
	CategorieUrbanisme     = "Urbanisme"
	CategorieSocial        = "Social & Solidarité"
	CategorieAutres        = "Autres"
)

// Categories liste l'ensemble fermé des catégories valides.
var Categories = []string{
	CategorieVoirie,
	CategorieProprete,
	CategorieSecurite,
	CategorieEspacesVerts,
	CategorieEnvironnement,
	CategorieServices,
	CategorieAnimalier,
	CategorieUrbanisme,
	CategorieSocial,
	CategorieAutres,
}

// GPSLocation est la position géographique optionnelle d'un signalement.
type GPSLocation struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Altitude  float64   `json:"altitude,omitempty"`
	Heading   float64   `json:"heading,omitempty"`
	Speed     float64   `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Address   string    `json:"address,omitempty"`
}

// Valid vérifie les bornes des coordonnées.
func (g *GPSLocation) Valid() bool {
	return g.Latitude >= -90 && g.Latitude <= 90 && g.Longitude >= -180 && g.Longitude <= 180
}

// Signalement représente un incident remonté par un citoyen. Racine d'agrégat :
// il possède sa liste de médias (colonne JSON) et référence reporter et
// modérateur par identifiant uniquement.
type Signalement struct {
	ID             int64               `json:"id" db:"id"`
	Description    string              `json:"description" db:"description"`
	TypeSignalement string             `json:"type_signalement" db:"type_signalement"`
	Statut         SignalementStatus   `json:"statut" db:"statut"`
	NbVotePositif  int                 `json:"nb_vote_positif" db:"nb_vote_positif"`
	NbVoteNegatif  int                 `json:"nb_vote_negatif" db:"nb_vote_negatif"`
	Cible          string              `json:"cible" db:"cible"`
	ModerateurID   *int64              `json:"moderateur_id,omitempty" db:"moderateur_id"`
	Anonymat       bool                `json:"anonymat" db:"anonymat"`
	RepublierDe    *int64              `json:"republier_de,omitempty" db:"republier_de"`
	Priorite       SignalementPriority `json:"priorite" db:"priorite"`
	Location       *GPSLocation        `json:"location,omitempty" db:"-"`
	H3Index        string              `json:"h3_index,omitempty" db:"h3_index"`
	CitoyenID      int64               `json:"citoyen_id" db:"citoyen_id"`
	Elements       []MediaElement      `json:"elements" db:"-"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
	Deleted        bool                `json:"deleted" db:"deleted"`
	DeletedAt      *time.Time          `json:"deleted_at,omitempty" db:"deleted_at"`
}

func (Signalement) TableName() string {
	return "signalements"
}
