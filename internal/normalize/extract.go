package normalize

// APIKey extracts an API key from the subscription/key payload shapes
// the backend returns. Flat candidates are probed first, then a nested
// api.key object, then key-list shapes where the active entry wins.
func APIKey(value any) string {
	payload := Unwrap(value)
	if payload == nil {
		if list, ok := value.([]any); ok {
			return apiKeyFromList(list)
		}
		return ""
	}

	if key := FirstString(payload, "api_key", "apiKey", "access_token", "accessToken", "token", "key"); key != "" {
		return key
	}
	if api := Nested(payload, "api"); api != nil {
		if key := FirstString(api, "key", "api_key", "token"); key != "" {
			return key
		}
	}

	for _, listKey := range []string{"api_keys", "items", "data"} {
		if list, ok := payload[listKey].([]any); ok {
			if key := apiKeyFromList(list); key != "" {
				return key
			}
		}
	}
	return ""
}

func apiKeyFromList(list []any) string {
	if len(list) == 0 {
		return ""
	}
	var active map[string]any
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if active == nil {
			active = entry
		}
		if FirstBool(entry, "is_active", "isActive") {
			active = entry
			break
		}
	}
	if active == nil {
		return ""
	}
	return FirstString(active, "access_token", "api_key", "token", "accessToken", "apiKey")
}

// PlanCode extracts the subscription plan code.
func PlanCode(value any) string {
	payload := Unwrap(value)
	if payload == nil {
		return ""
	}
	if code := FirstString(payload, "plan_code", "planCode"); code != "" {
		return code
	}
	if plan := Nested(payload, "plan"); plan != nil {
		if code := FirstString(plan, "code", "plan_code"); code != "" {
			return code
		}
	}
	if sub := Nested(payload, "subscription"); sub != nil {
		if code := FirstString(sub, "plan_code", "planCode"); code != "" {
			return code
		}
		if plan := Nested(sub, "plan"); plan != nil {
			if code := FirstString(plan, "code"); code != "" {
				return code
			}
		}
	}
	return ""
}

// ExtractAgentData pulls the agent configuration object out of an
// interview completion payload. Accepted variants, in priority order:
// an agent_data/agentData/agent field (optionally under data), the
// first element of an array, and finally the payload itself when it
// carries any fields at all.
func ExtractAgentData(value any) map[string]any {
	if value == nil {
		return nil
	}

	if list, ok := value.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		if first, ok := list[0].(map[string]any); ok {
			return first
		}
		return nil
	}

	payload, ok := value.(map[string]any)
	if !ok {
		return nil
	}

	for _, key := range []string{"agent_data", "agentData", "agent"} {
		if nested, ok := payload[key].(map[string]any); ok && nested != nil {
			return nested
		}
	}
	if data := Nested(payload, "data"); data != nil {
		for _, key := range []string{"agent_data", "agentData", "agent"} {
			if nested, ok := data[key].(map[string]any); ok && nested != nil {
				return nested
			}
		}
	}

	if len(payload) > 0 {
		return payload
	}
	return nil
}

// TemplateID extracts the interview template identifier from a
// completion payload or the already-extracted agent data.
func TemplateID(payload, agentData map[string]any) string {
	if id := FirstString(payload, "template", "template_id", "templateId"); id != "" {
		return id
	}
	return FirstString(agentData, "template", "template_id", "templateId")
}

// SessionID extracts the interview correlation id. The returned string
// may still contain an uninterpolated template marker ("{{"); callers
// decide how to handle that.
func SessionID(payload, agentData map[string]any) string {
	if id := FirstString(payload, "session_id", "sessionId"); id != "" {
		return id
	}
	return FirstString(agentData, "session_id", "sessionId")
}
