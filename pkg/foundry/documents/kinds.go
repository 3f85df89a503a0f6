// Package documents models the remote document graph as seen through the
// modifyDocument event: the closed set of document types, the four CRUD
// actions and the request/response envelopes.
package documents

import (
	"github.com/conneroisu/foundry/pkg/foundryerrs"
)

// Kind is any addressable document type. It is implemented only by
// DocumentType and EmbeddedType.
type Kind interface {
	// String returns the wire name of the type.
	String() string
	// Embedded reports whether documents of this type live inside a parent.
	Embedded() bool
	// Valid reports whether the type is in the known set.
	Valid() bool

	sealed()
}

// DocumentType is a top-level (world collection) document type.
type DocumentType string

// Top-level document types.
const (
	Actor          DocumentType = "Actor"
	Adventure      DocumentType = "Adventure"
	Cards          DocumentType = "Cards"
	ChatMessage    DocumentType = "ChatMessage"
	Combat         DocumentType = "Combat"
	FogExploration DocumentType = "FogExploration"
	Folder         DocumentType = "Folder"
	Item           DocumentType = "Item"
	JournalEntry   DocumentType = "JournalEntry"
	Macro          DocumentType = "Macro"
	Playlist       DocumentType = "Playlist"
	RollTable      DocumentType = "RollTable"
	Scene          DocumentType = "Scene"
	Setting        DocumentType = "Setting"
	User           DocumentType = "User"
)

var documentTypes = []DocumentType{
	Actor, Adventure, Cards, ChatMessage, Combat, FogExploration, Folder,
	Item, JournalEntry, Macro, Playlist, RollTable, Scene, Setting, User,
}

// EmbeddedType is a document type that exists only inside a parent.
type EmbeddedType string

// Embedded document types.
const (
	ActiveEffect     EmbeddedType = "ActiveEffect"
	ActorDelta       EmbeddedType = "ActorDelta"
	AmbientLight     EmbeddedType = "AmbientLight"
	AmbientSound     EmbeddedType = "AmbientSound"
	Card             EmbeddedType = "Card"
	Combatant        EmbeddedType = "Combatant"
	Drawing          EmbeddedType = "Drawing"
	JournalEntryPage EmbeddedType = "JournalEntryPage"
	MeasuredTemplate EmbeddedType = "MeasuredTemplate"
	Note             EmbeddedType = "Note"
	PlaylistSound    EmbeddedType = "PlaylistSound"
	Region           EmbeddedType = "Region"
	TableResult      EmbeddedType = "TableResult"
	Tile             EmbeddedType = "Tile"
	Token            EmbeddedType = "Token"
	Wall             EmbeddedType = "Wall"
)

var embeddedTypes = []EmbeddedType{
	ActiveEffect, ActorDelta, AmbientLight, AmbientSound, Card, Combatant,
	Drawing, JournalEntryPage, MeasuredTemplate, Note, PlaylistSound, Region,
	TableResult, Tile, Token, Wall,
}

func (t DocumentType) String() string { return string(t) }

// Embedded implements Kind.
func (DocumentType) Embedded() bool { return false }

func (DocumentType) sealed() {}

// Valid reports whether t is a known top-level type.
func (t DocumentType) Valid() bool {
	for _, known := range documentTypes {
		if t == known {
			return true
		}
	}

	return false
}

func (t EmbeddedType) String() string { return string(t) }

// Embedded implements Kind.
func (EmbeddedType) Embedded() bool { return true }

func (EmbeddedType) sealed() {}

// Valid reports whether t is a known embedded type.
func (t EmbeddedType) Valid() bool {
	for _, known := range embeddedTypes {
		if t == known {
			return true
		}
	}

	return false
}

// DocumentTypes returns every top-level type.
func DocumentTypes() []DocumentType {
	return append([]DocumentType(nil), documentTypes...)
}

// EmbeddedTypes returns every embedded type.
func EmbeddedTypes() []EmbeddedType {
	return append([]EmbeddedType(nil), embeddedTypes...)
}

// ParseKind resolves a wire name to its Kind.
func ParseKind(name string) (Kind, error) {
	if t := DocumentType(name); t.Valid() {
		return t, nil
	}
	if t := EmbeddedType(name); t.Valid() {
		return t, nil
	}

	return nil, foundryerrs.NewValidationError(
		foundryerrs.ErrCodeInvalidType,
		"unknown document type: "+name,
		"type",
		name,
	)
}
