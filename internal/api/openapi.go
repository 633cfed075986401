package api

// buildOpenAPIDoc returns an OpenAPI 3.1 document describing the HTTP API.
func buildOpenAPIDoc() map[string]any {
	bearer := []any{map[string]any{"BearerAuth": []string{}}}
	content := func(schema map[string]any) map[string]any {
		return map[string]any{"application/json": map[string]any{"schema": schema}}
	}
	ref := func(name string) map[string]any {
		return map[string]any{"$ref": "#/components/schemas/" + name}
	}
	errResp := func(desc string) map[string]any {
		return map[string]any{"description": desc, "content": content(ref("Error"))}
	}

	paths := map[string]any{
		"/healthz": map[string]any{
			"get": map[string]any{
				"operationId": "healthz",
				"summary":     "Liveness and belief store reachability",
				"responses": map[string]any{
					"200": map[string]any{"description": "Healthy"},
					"503": map[string]any{"description": "Belief store unreachable"},
				},
			},
		},
		"/arms": map[string]any{
			"get": map[string]any{
				"operationId": "listArms",
				"summary":     "Catalog arms with their Beta beliefs and any orphaned records",
				"security":    bearer,
				"responses": map[string]any{
					"200": map[string]any{"description": "Arms", "content": content(ref("Arms"))},
					"422": errResp("Catalog invalid"),
					"503": errResp("Belief store unavailable"),
				},
			},
		},
		"/arms/sample": map[string]any{
			"post": map[string]any{
				"operationId": "sampleArm",
				"summary":     "Thompson-sample one arm from the catalog or a subset of it",
				"security":    bearer,
				"requestBody": map[string]any{
					"required": false,
					"content":  content(ref("SampleRequest")),
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "Decision", "content": content(ref("Decision"))},
					"400": errResp("Unknown arm in subset"),
					"422": errResp("Catalog invalid"),
					"503": errResp("Belief store unavailable"),
				},
			},
		},
		"/arms/{arm}/reward": map[string]any{
			"post": map[string]any{
				"operationId": "updateReward",
				"summary":     "Record an observed reward for an arm",
				"security":    bearer,
				"parameters": []any{map[string]any{
					"name": "arm", "in": "path", "required": true,
					"schema": map[string]any{"type": "string"},
				}},
				"requestBody": map[string]any{
					"required": true,
					"content":  content(ref("RewardRequest")),
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "Applied or duplicate"},
					"400": errResp("Invalid reward or event type"),
					"503": errResp("Belief store unavailable"),
				},
			},
		},
		"/arms/prune": map[string]any{
			"post": map[string]any{
				"operationId": "pruneOrphans",
				"summary":     "Delete beliefs for arms no longer in the catalog",
				"security":    bearer,
				"responses": map[string]any{
					"200": map[string]any{"description": "Pruned arm names"},
					"409": errResp("Orphan policy is retain"),
					"503": errResp("Belief store unavailable"),
				},
			},
		},
		"/events": map[string]any{
			"get": map[string]any{
				"operationId": "streamEvents",
				"summary":     "Server-sent stream of arm.sampled, reward.recorded and arms.pruned",
				"security":    bearer,
				"responses": map[string]any{
					"200": map[string]any{
						"description": "Event stream",
						"content":     map[string]any{"text/event-stream": map[string]any{}},
					},
				},
			},
		},
	}

	number := map[string]any{"type": "number"}
	str := map[string]any{"type": "string"}
	schemas := map[string]any{
		"Error": map[string]any{
			"type":       "object",
			"properties": map[string]any{"error": str},
		},
		"Arm": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": str,
				"meta": map[string]any{"type": "object"},
			},
			"required": []string{"name"},
		},
		"ArmView": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":        str,
				"meta":        map[string]any{"type": "object"},
				"alpha":       number,
				"beta":        number,
				"mean":        number,
				"initialized": map[string]any{"type": "boolean"},
				"updated_at":  map[string]any{"type": "string", "format": "date-time"},
			},
		},
		"Arms": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"catalog":       str,
				"orphan_policy": map[string]any{"type": "string", "enum": []string{"retain", "prune"}},
				"arms":          map[string]any{"type": "array", "items": ref("ArmView")},
				"orphans":       map[string]any{"type": "array", "items": str},
			},
		},
		"SampleRequest": map[string]any{
			"type":       "object",
			"properties": map[string]any{"arms": map[string]any{"type": "array", "items": str}},
		},
		"Decision": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"decision_id": str,
				"arm":         ref("Arm"),
				"draw":        number,
				"catalog":     str,
				"at":          map[string]any{"type": "string", "format": "date-time"},
			},
		},
		"RewardRequest": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reward":   number,
				"type":     str,
				"event_id": str,
			},
		},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "armsd",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"schemas": schemas,
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}
