package mcpserver

// ConnectionGuide describes how notes relate in the graph. The category
// list is appended at read time from the active heuristic rules.
const ConnectionGuide = `# Note Graph Connection Guide

Connections are directed: source -[RELATION]-> target. Both notes must
belong to you, a note cannot point to itself, and a pair can carry each
relation at most once.

## Relations

| Label          | Use when                                             |
|----------------|------------------------------------------------------|
| RELATED        | General topical overlap (default)                    |
| SIMILAR        | The notes say nearly the same thing                  |
| FOLLOW_UP      | The target continues or acts on the source           |
| PREREQUISITE   | The source must be understood before the target      |
| CONTRAST       | The notes disagree or present alternatives           |
| PLAN_STEP      | The target is a step of the plan in the source       |
| RELATED_LINK   | The target was saved from a link the source mentions |

Labels are upper case. Other labels are accepted but are not produced
by automatic analysis.

## Importance

Every note has an importance score from 1 (trivia) to 10 (critical).
New notes start at 5 until analysis runs.
`
