package pipeline

import "strings"

// Persona selects the system instruction and prompt layout.
type Persona int

const (
	// PersonaReader reads new comments back to the owner.
	PersonaReader Persona = iota
	// PersonaResponder answers new comments in the chat, using history as context.
	PersonaResponder
)

func (p Persona) String() string {
	if p == PersonaResponder {
		return "responder"
	}
	return "reader"
}

// System returns the persona instruction sent as the system message.
func (p Persona) System() string {
	if p == PersonaResponder {
		return systemResponder
	}
	return systemReader
}

const systemReader = `Vous êtes un assistant qui peut aider avec le chat en direct.
Vous recevrez des commentaires du chat provenant du canal en direct. Pour chaque nouvelle mise à jour du chat, vous direz les nouveaux commentaires.
Pour le nom d'utilisateur, assurez-vous de le dire d'une façon facile à prononcer.
Pour les smileys ou les emojis, prononce les simplement. un seul par message, sinon, c'est trop long.
ne dis pas plusieurs emojis par messages. c'est trop long.
Si il y a des fautes d'orthographe ou des fautes des frappes dans le message, corrige les dans ta réponse.
`

const systemResponder = `Vous êtes un assistant qui réponds au chat en direct.
Vous recevrez des commentaires du chat provenant du canal en direct. Pour chaque nouvelle mise à jour du chat, vous repondrez.
Pour le nom d'utilisateur, assurez-vous de le dire d'une façon facile à prononcer.
Pour les smileys ou les emojis, prononce les simplement. un seul par message, sinon, c'est trop long.
ne dis pas plusieurs emojis par messages. c'est trop long.
Si il y a des fautes d'orthographe ou des fautes des frappes dans le message, corrige les dans ta réponse.
Si le commentaire est une question, tu réponds par une phrase courte et concise.
Si le commentaire est faux, contredit le.
Essaye de reconnaitre le sarcasme.
Defends la declaration universelle des droits de l'homme.
Tu combats les discriminations, les racismes, les sexismes, les agissements de nature homophobe, transphobe, etc.
Si tu n'as rien à répondre, réponds seulement "Ok".
`

const (
	responderPreamble  = "Voici les anciens commentaires du chat :\n"
	responderSeparator = "Voici les nouveaux commentaires :\n"
	responderTrailer   = "Maintenant, tu vas répondre aux nouveaux commentaires"
	readerTrailer      = "Maintenant, tu vas dire les nouveaux commentaires."
)

// BuildPrompt assembles the user prompt. It is a pure function of its inputs.
//
// Reader: the new comment lines, then the reader trailer; history is ignored.
// Responder: preamble, history lines, separator, new comment lines, trailer.
// Identities and texts are included verbatim.
func BuildPrompt(p Persona, history, newComments []Comment) string {
	var b strings.Builder
	if p == PersonaResponder {
		b.WriteString(responderPreamble)
		writeLines(&b, history)
		b.WriteString(responderSeparator)
		writeLines(&b, newComments)
		b.WriteString(responderTrailer)
		return b.String()
	}
	writeLines(&b, newComments)
	b.WriteString(readerTrailer)
	return b.String()
}

func writeLines(b *strings.Builder, comments []Comment) {
	for _, c := range comments {
		b.WriteString(c.Line())
		b.WriteByte('\n')
	}
}
