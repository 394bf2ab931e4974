package config

// DefaultConfigYAML is written by `taskgraph init`.
const DefaultConfigYAML = `# taskgraph configuration
# Environment variables override these values: TASKGRAPH_LOG_LEVEL, TASKGRAPH_STORE_PATH, ...

log:
  level: info
  format: auto

trace:
  # off | file
  mode: off
  dir: .taskgraph/traces
  redact: true

tracing:
  # noop | stdout | otlp
  provider: noop
  endpoint: localhost:4317
  insecure: false
  sample_rate: 1.0
  service_name: taskgraph

orchestrator:
  # 0 runs every node of a wave at once
  max_parallel: 0
  default_kind: answer
  timeout: ""

tools:
  retry:
    max_attempts: 1
    base_delay: 1s
    max_delay: 30s
    multiplier: 2
  rate_limit:
    enabled: false
    max_tokens: 10
    refill_rate: 5
  answer:
    prefix: "OUT:"

store:
  # sqlite | json
  backend: sqlite
  path: .taskgraph/runs.db

server:
  addr: 127.0.0.1:8080
  cors_origins: []
`
