package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
)

// MockLLM is an offline provider for local runs. It never calls a model and
// returns the same output for the same prompt.
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	return mockArticle, nil
}

func (m MockLLM) CompleteStructured(_ context.Context, prompt Prompt, contract Contract) ([]byte, error) {
	var v any
	switch contract.Name {
	case TopicCandidatesContract.Name:
		v = TopicCandidates{Candidates: mockTopics}
	case TopicSelectionContract.Name:
		v = TopicSelection{
			SelectedIndex: int(pick(prompt.User, CandidateCount)),
			Reasoning:     "Clearest premise and the least overlap with recent coverage.",
		}
	case ReviewContract.Name:
		v = Review{
			Score:         8,
			ToneCorrect:   true,
			WordCountOk:   true,
			SatireQuality: SatireGood,
			HTMLValid:     true,
			Feedback:      "Kicker lands. Trim the second quote.",
		}
	default:
		ids := enumOf(contract.Schema, "authorId")
		if len(ids) == 0 {
			return nil, fmt.Errorf("mock llm: unsupported contract %q", contract.Name)
		}
		v = AuthorAssignment{
			AuthorID:  ids[pick(prompt.User, uint32(len(ids)))],
			Reasoning: "Topic sits squarely in this writer's beat.",
		}
	}
	return json.Marshal(v)
}

func pick(s string, n uint32) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32() % n
}

func enumOf(schema map[string]any, prop string) []string {
	props, _ := schema["properties"].(map[string]any)
	field, _ := props[prop].(map[string]any)
	ids, _ := field["enum"].([]string)
	return ids
}

var mockTopics = []Topic{
	{
		Headline:    "Carrier Announces Blank Sailing of Blank Sailing Announcement",
		Subheadline: "Schedule reliability reaches 100% after line stops publishing schedules",
		Angle:       "A top-five carrier cancels its own cancellation notice, creating a recursive void in the Asia-North Europe network. Shippers are advised to book space in the void.",
		Tags:        []string{"ocean freight", "blank sailings", "carriers"},
	},
	{
		Headline:    "Port Congestion Officially Recognised as Permanent Geographic Feature",
		Subheadline: "Cartographers add 40-vessel queue to nautical charts",
		Angle:       "The anchorage queue outside a major gateway is granted landmark status. Tour operators begin selling day trips to watch ships wait.",
		Tags:        []string{"ports", "congestion", "maritime"},
	},
	{
		Headline:    "Freight Forwarder Achieves Full Visibility, Immediately Regrets It",
		Subheadline: "Real-time tracking dashboard reveals exactly how late everything is",
		Angle:       "A mid-sized forwarder deploys an AI visibility platform and learns the precise location of every delayed container. Customer satisfaction plummets as uncertainty is replaced by certainty.",
		Tags:        []string{"technology", "visibility", "forwarding"},
	},
}

const mockArticle = `<p>ROTTERDAM - In a development industry analysts are calling "entirely predictable in hindsight," a consortium of carriers confirmed on Tuesday that demurrage charges will now accrue retroactively from the moment a container is first imagined.</p>
<p>The change, outlined in a 214-page tariff circular, follows a pilot programme in which 73.4% of participating shippers reported being "unsure what happened."</p>
<blockquote><p>"We are simply aligning our billing with the full lifecycle of the box," said Henrik Vaal, Chief Commercial Imagination Officer at Meridian Box Lines.</p></blockquote>
<h2>A new frontier in free time</h2>
<p>Free time, previously measured in days, will now be measured in intentions. Forwarders have been advised to think about containers as little as possible.</p>
<p>At press time, the circular itself had accrued three days of detention.</p>`
