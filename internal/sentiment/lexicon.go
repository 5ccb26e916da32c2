package sentiment

// valence holds word polarity on a -4..4 scale, tuned for market headlines.
var valence = map[string]float64{
	// positive
	"beat": 1.9, "beats": 1.9, "bullish": 2.4, "boost": 1.7, "boosts": 1.7, "breakout": 1.6,
	"buy": 1.2, "climb": 1.3, "climbs": 1.3, "confident": 2.0, "gain": 1.9, "gains": 1.9,
	"good": 1.9, "great": 3.1, "growth": 1.8, "high": 0.6, "higher": 1.1, "improve": 1.9,
	"improves": 1.9, "improved": 1.9, "jump": 1.4, "jumps": 1.4, "love": 3.2, "moon": 1.8,
	"optimistic": 2.3, "outperform": 2.0, "outperforms": 2.0, "positive": 2.6, "profit": 1.9,
	"profits": 1.9, "profitable": 2.0, "rally": 1.9, "rallies": 1.9, "record": 1.0, "recover": 1.6,
	"recovery": 1.6, "rise": 1.3, "rises": 1.3, "soar": 2.2, "soars": 2.2, "strong": 2.3,
	"stronger": 2.2, "success": 2.7, "surge": 1.9, "surges": 1.9, "top": 0.8, "upbeat": 2.0,
	"upgrade": 1.9, "upgrades": 1.9, "upgraded": 1.9, "win": 2.8, "wins": 2.7, "excellent": 3.2,
	"amazing": 2.8, "best": 3.2, "happy": 2.7, "exceed": 1.6, "exceeds": 1.6, "solid": 1.7,
	// negative
	"bad": -2.5, "bankrupt": -2.6, "bankruptcy": -2.6, "bearish": -2.4, "collapse": -2.5,
	"concern": -1.4, "concerns": -1.4, "crash": -2.8, "crashes": -2.8, "cut": -1.1, "cuts": -1.1,
	"decline": -1.5, "declines": -1.5, "downgrade": -1.9, "downgrades": -1.9, "downgraded": -1.9,
	"drop": -1.1, "drops": -1.1, "fall": -1.2, "falls": -1.2, "fear": -2.2, "fears": -2.2,
	"fraud": -3.0, "hate": -2.7, "lawsuit": -1.7, "lose": -1.7, "loses": -1.7, "loss": -1.3,
	"losses": -1.7, "miss": -1.4, "misses": -1.4, "negative": -2.7, "plunge": -2.3, "plunges": -2.3,
	"poor": -2.1, "probe": -1.1, "recall": -1.2, "recession": -2.1, "risk": -1.1, "risks": -1.1,
	"scandal": -2.6, "sell": -0.8, "selloff": -2.0, "sink": -1.6, "sinks": -1.6, "slide": -1.3,
	"slides": -1.3, "slump": -2.0, "slumps": -2.0, "terrible": -2.5, "tumble": -2.0,
	"tumbles": -2.0, "uncertain": -1.4, "uncertainty": -1.4, "warn": -1.4, "warns": -1.4,
	"weak": -1.9, "weaker": -1.9, "worst": -3.1, "worse": -2.1, "layoffs": -2.0, "default": -1.5,
}

// boosters scale the intensity of the following sentiment word.
var boosters = map[string]float64{
	"absolutely": 0.293, "very": 0.293, "extremely": 0.293, "hugely": 0.293, "incredibly": 0.293,
	"really": 0.293, "so": 0.293, "sharply": 0.293, "significantly": 0.293, "most": 0.293,
	"barely": -0.293, "slightly": -0.293, "somewhat": -0.293, "marginally": -0.293, "kinda": -0.293,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "none": true, "nobody": true, "nothing": true,
	"neither": true, "nor": true, "without": true, "hardly": true, "cannot": true,
	"isnt": true, "arent": true, "wasnt": true, "werent": true, "dont": true, "doesnt": true,
	"didnt": true, "wont": true, "cant": true, "couldnt": true, "shouldnt": true,
}
