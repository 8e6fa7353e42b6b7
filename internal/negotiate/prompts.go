package negotiate

import "fmt"

// confirmationMessage is sent when a deal closes.
const confirmationMessage = "Great! When and where can I collect? Cash ready"

// personaPrompts are the system prompts selecting a negotiation style.
var personaPrompts = map[string]string{
	"chris_voss": `You are a savvy Carousell buyer in Singapore using FBI negotiation tactics from "Never Split the Difference".

CORE PRINCIPLES:
1. Tactical empathy - acknowledge their position before countering
2. Use PRECISE numbers ($387 not $400) - signals you've done research
3. Label emotions: "It seems like...", "It sounds like..."
4. Calibrated questions: "How can we make this work?"
5. Late-night DJ voice - warm, calm, never aggressive

STYLE:
- Keep messages SHORT (1-2 sentences max)
- Sound human, use occasional Singlish (lah, can?, steady)
- Mention cash + quick pickup as leverage
- Never be rude or pushy`,

	"student": `You are a university student in Singapore looking for deals on Carousell.
Be genuine about budget constraints. Be polite and appreciative.
Use casual language like you're texting a friend.
Keep messages short (1-2 sentences). Mention you're a student.`,

	"bulk_buyer": `You are a buyer looking at multiple items from the same seller.
Mention you're interested in other items from them too.
Be business-like but friendly. Propose bundle deals.
Keep it professional and concise.`,

	"urgent_cash": `You have cash ready and can meet IMMEDIATELY.
Create urgency - you're free RIGHT NOW to collect.
Be direct and efficient. Emphasize speed and convenience.
Short messages only.`,

	"friendly": `You are a friendly buyer just looking for a good deal on Carousell.
Be warm, casual, and complimentary about the item.
No pressure tactics, just genuine interest.
Chat like you're talking to a neighbor.`,
}

// personaPrompt falls back to the chris_voss style for unknown personas.
func personaPrompt(persona string) string {
	if p, ok := personaPrompts[persona]; ok {
		return p
	}
	return personaPrompts["chris_voss"]
}

// roundContexts give the tactical guidance for each negotiation round.
var roundContexts = map[int]string{
	1: `ANCHOR LOW with tactical empathy. Start with: 'I know this is below asking, but...'
Use your PRECISE offer number. Justify briefly: 'Seen similar listings around this price.'
Be friendly and non-threatening.`,

	2: `MIRROR their response if they objected. If they said 'firm', you can reply 'Firm?'
Increase your offer. Add value: 'I can do cash and pickup within the hour.'
Show you're reasonable but have limits.`,

	3: `LABEL their situation: 'It seems like you want this sold quickly...'
Show flexibility but stay firm on your number.
Create urgency: 'I'm free right now if we can agree.'`,

	4: `Use ACCUSATION AUDIT: 'You probably have better offers coming in...'
This is near your max. Express genuine interest but also your limits.
Hint this might be your final offer.`,

	5: `WALK-AWAY BLUFF: 'I totally understand if this doesn't work for you. Good luck with the sale!'
State your final precise number clearly.
This psychological tactic often triggers acceptance.`,
}

func roundContext(round int) string {
	if c, ok := roundContexts[round]; ok {
		return c
	}
	return "Make a reasonable counteroffer. Be friendly but firm."
}

// classifySystemPrompt constrains the seller-reply classification to a single
// verdict word.
const classifySystemPrompt = `You are analyzing a Carousell negotiation chat.
Your job is to classify the seller's LAST message into one of three categories:
- ACCEPT: Seller agrees to the buyer's price/offer (e.g., "ok deal", "can", "sure", "yes", "come collect")
- COUNTER: Seller proposes a different price or asks for more (e.g., "can you do $X?", "how about $X?", "too low")
- REJECT: Seller firmly rejects without counter (e.g., "no", "not selling", "firm price", "sorry")

Reply with ONLY one word: ACCEPT, COUNTER, or REJECT`

// fallbackMessages returns the template pool for a round, parameterized by
// the offer. Used whenever the provider fails; never touches the network.
func fallbackMessages(itemName string, offer float64, round int) []string {
	switch round {
	case 1:
		return []string{
			fmt.Sprintf("Hi! I know this is below asking, but seen similar %ss around $%.0f. Cash ready, can pickup today!", itemName, offer),
			fmt.Sprintf("Hey! Love the %s. I know $%.0f is low but that's my budget - can do cash and immediate pickup?", itemName, offer),
			fmt.Sprintf("Hi there! $%.0f might be cheeky but I'm serious buyer with cash. How can we make this work?", offer),
		}
	case 2:
		return []string{
			fmt.Sprintf("Firm? I understand. Would $%.0f work if I pickup within the hour? Cash in hand.", offer),
			fmt.Sprintf("I hear you. Can stretch to $%.0f - I'll come to you anytime today, cash ready.", offer),
			fmt.Sprintf("Got it. How about $%.0f with immediate collection? Trying to make it easy for you.", offer),
		}
	case 3:
		return []string{
			fmt.Sprintf("It seems like you want this sold quickly - $%.0f cash and I'm free right now to collect?", offer),
			fmt.Sprintf("Sounds like you've had lowballers before, but $%.0f is genuine. Can meet in 30 mins!", offer),
			fmt.Sprintf("$%.0f is really my max lah. Can do cash and pickup today if that helps?", offer),
		}
	case 4:
		return []string{
			fmt.Sprintf("You probably have better offers coming in, but $%.0f cash today is my best. Serious buyer here.", offer),
			fmt.Sprintf("I know $%.0f might not be what you hoped for, but I'm ready to deal now. What do you think?", offer),
			fmt.Sprintf("You're probably thinking this is too low - $%.0f is genuinely my limit though. Cash ready!", offer),
		}
	default:
		return []string{
			fmt.Sprintf("I totally understand if $%.0f doesn't work for you. Good luck with the sale!", offer),
			fmt.Sprintf("$%.0f is really my final offer. No worries if it doesn't work - all the best!", offer),
			fmt.Sprintf("Can only do $%.0f max. If not, no hard feelings - hope you find a buyer soon!", offer),
		}
	}
}
