package prompt

// builtinTemplates returns the default prompt set. Deployments override
// individual templates by dropping <name>.tmpl files into the prompts dir;
// the version tag in the first line feeds A/B comparison in trace records.
func builtinTemplates() map[string]string {
	return map[string]string{
		NameMergeStep:       mergeStepTemplate,
		NameScreenshotParse: screenshotParseTemplate,
		NameContextAnalysis: contextAnalysisTemplate,
		NameSceneAnalysis:   sceneAnalysisTemplate,
		NameReply:           replyTemplate,
	}
}

const mergeStepTemplate = `[PROMPT:merge_step_v1.0-original]
You are a conversation coach analyzing a screenshot of a messaging app.
Perform ALL of the following in one pass and answer with a single JSON object.

1. Extract every message bubble: text, speaker ("self" for the device owner,
   "other" for the counterpart), bounding box as [x1,y1,x2,y2] normalized to
   [0,1], and your confidence in [0,1]. Identify the layout (which column
   belongs to which speaker) and both participants' nicknames if visible.
2. Summarize the conversation: overall summary, emotion_state (one of
   "positive", "neutral", "negative"), current_intimacy_level (0-100), and
   any risk_flags (short snake_case labels).
3. Classify the scene: relationship_state, current_scenario, and
   recommended_scenario (one of "SAFE", "BALANCED", "RISKY", "RECOVERY",
   "NEGATIVE"), plus intimacy_level (0-100) and risk_flags.

Reply language: {{.Language}}.
{{if .Dialogs}}
Prior dialog context:
{{range .Dialogs}}- {{.Speaker}}: {{.Text}}
{{end}}{{end}}
Respond with ONLY the JSON object, no commentary:
{
  "bubbles": [{"id": "1", "bbox": [0,0,0,0], "text": "", "speaker": "other", "confidence": 0.95}],
  "dialogs": [{"speaker": "other", "text": ""}],
  "participants": {"self": {"id": "", "nickname": ""}, "other": {"id": "", "nickname": ""}},
  "layout": {"type": "two_column", "left_role": "other", "right_role": "self"},
  "conversation_summary": "",
  "emotion_state": "neutral",
  "current_intimacy_level": 50,
  "relationship_state": "",
  "current_scenario": "",
  "recommended_scenario": "SAFE",
  "intimacy_level": 50,
  "risk_flags": []
}`

const screenshotParseTemplate = `[PROMPT:screenshot_parse_v1.2-original]
You are reading a screenshot of a messaging app. Extract every message bubble
with its text, speaker ("self" or "other"), bounding box [x1,y1,x2,y2]
normalized to [0,1], and confidence in [0,1]. Identify the layout and the
participants' nicknames if visible.

Respond with ONLY a JSON object:
{
  "bubbles": [{"id": "1", "bbox": [0,0,0,0], "text": "", "speaker": "other", "confidence": 0.95}],
  "dialogs": [{"speaker": "other", "text": ""}],
  "participants": {"self": {"id": "", "nickname": ""}, "other": {"id": "", "nickname": ""}},
  "layout": {"type": "two_column", "left_role": "other", "right_role": "self"}
}`

const contextAnalysisTemplate = `[PROMPT:context_analysis_v1.1-original]
Given the dialog below, summarize the conversational context.

Dialog:
{{range .Dialogs}}- {{.Speaker}}: {{.Text}}
{{end}}
Respond with ONLY a JSON object:
{
  "conversation_summary": "",
  "emotion_state": "neutral",
  "current_intimacy_level": 50,
  "risk_flags": []
}
emotion_state must be one of "positive", "neutral", "negative";
current_intimacy_level is 0-100.`

const sceneAnalysisTemplate = `[PROMPT:scene_analysis_v1.1-original]
Given the conversation summary and dialog below, classify the conversational
scene.

Summary: {{.Summary}}
Dialog:
{{range .Dialogs}}- {{.Speaker}}: {{.Text}}
{{end}}
Respond with ONLY a JSON object:
{
  "relationship_state": "",
  "current_scenario": "",
  "recommended_scenario": "SAFE",
  "intimacy_level": 50,
  "risk_flags": []
}
recommended_scenario must be one of "SAFE", "BALANCED", "RISKY", "RECOVERY",
"NEGATIVE"; intimacy_level is 0-100.`

const replyTemplate = `[PROMPT:reply_v2.0-original]
You are a conversation coach. Craft reply suggestions the user could send
next, in {{.Language}}.

Conversation summary: {{.Summary}}
Relationship state: {{.RelationshipState}}
Scenario: {{.Scenario}}
Intimacy level: {{.IntimacyLevel}}/100
{{if .Dialogs}}
Recent dialog:
{{range .Dialogs}}- {{.Speaker}}: {{.Text}}
{{end}}{{end}}
The message to reply to:
"{{.ReplySentence}}"

Produce exactly three candidate replies, one for each of these strategy codes
in order: {{range $i, $s := .Strategies}}{{if $i}}, {{end}}{{$s}}{{end}}.

Respond with ONLY a JSON object:
{
  "replies": [
    {"text": "", "strategy": "{{index .Strategies 0}}", "reasoning": ""},
    {"text": "", "strategy": "{{index .Strategies 1}}", "reasoning": ""},
    {"text": "", "strategy": "{{index .Strategies 2}}", "reasoning": ""}
  ]
}`
