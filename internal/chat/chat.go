package chat

import "strings"

type Request struct {
	Disease  string `json:"disease"`
	Question string `json:"question"`
}

type Response struct {
	Answer string `json:"answer"`
}

// Responder answers follow-up questions about a predicted disease.
type Responder interface {
	Answer(disease, question string) string
}

// topic is one family of questions. Answers are picked by the first
// disease keyword contained in the disease name, else the default.
type topic struct {
	keywords []string
	answers  map[string]string
	fallback string
}

const (
	healthyAnswer = "Great news! Your plant appears healthy. Continue with regular maintenance: proper watering, adequate spacing, balanced fertilization, and regular monitoring for early signs of disease."
	defaultAnswer = "I can help with questions about disease causes, treatments, and prevention. Could you ask more specifically about symptoms, what to do, or how to prevent this disease?"
)

var diseaseKeywords = []string{"blight", "rust"}

var topics = []topic{
	{
		keywords: []string{"why", "cause"},
		answers: map[string]string{
			"blight": "Late blight and early blight are usually caused by high humidity and poor airflow between plants. Fungal spores thrive in wet conditions. Ensure good air circulation, avoid overhead watering, and maintain proper plant spacing.",
			"rust":   "Rust typically develops in warm, wet conditions with poor air circulation. High humidity creates ideal conditions for fungal spore germination.",
		},
		fallback: "This disease develops when environmental conditions favor the pathogen. Factors include temperature, humidity, moisture, and plant stress.",
	},
	{
		keywords: []string{"treatment", "what should i do", "cure"},
		answers: map[string]string{
			"blight": "For blight: 1) Remove infected leaves immediately. 2) Apply fungicides (copper-based or mancozeb). 3) Improve ventilation. 4) Avoid wetting foliage. 5) Space plants properly. 6) Remove severely affected plants.",
			"rust":   "For rust: 1) Remove and destroy infected leaves. 2) Apply sulfur or copper fungicides. 3) Improve air circulation. 4) Avoid overhead watering. 5) Remove debris from field.",
		},
		fallback: "Consult a local agricultural extension office for specific treatment recommendations for this disease.",
	},
	{
		keywords: []string{"prevent", "prevention"},
		answers: map[string]string{
			"blight": "Prevention: Use resistant varieties, practice crop rotation, ensure good drainage, avoid excess nitrogen, mulch soil, stake/trellis plants for airflow, water at soil level only.",
			"rust":   "Prevention: Maintain proper spacing, use resistant varieties, avoid excess nitrogen, water in morning only, remove debris, practice crop rotation.",
		},
		fallback: "General prevention: Use resistant varieties, practice crop rotation, ensure proper plant spacing, avoid stress, and maintain good field hygiene.",
	},
}

// RuleResponder matches lower-cased substrings of the question and disease
// against a fixed rule table.
type RuleResponder struct{}

func NewRuleResponder() *RuleResponder {
	return &RuleResponder{}
}

func (RuleResponder) Answer(disease, question string) string {
	disease = strings.ToLower(disease)
	question = strings.ToLower(question)

	for _, t := range topics {
		if !containsAny(question, t.keywords) {
			continue
		}
		for _, kw := range diseaseKeywords {
			if strings.Contains(disease, kw) {
				return t.answers[kw]
			}
		}
		return t.fallback
	}

	if disease == "healthy" {
		return healthyAnswer
	}
	return defaultAnswer
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
