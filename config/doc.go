/*
Copyright 2021, Square, Inc.

Package config provides the ability to load config files into predefined
structures that are used by synth. A config file is optional: Defaults returns
a complete config, and Load overrides only the values the file sets.

Types of config structs provided by this package:

  - Synth: all of the config needed to render workflows and write the template

  - Stack: the name and description of the resource template

  - Function: defaults for every function resource (ex: the runtime, memory
    size, timeout, tracing mode, layers, environment)

  - StateMachine: defaults for every state machine resource (ex: STANDARD or
    EXPRESS, tracing)

  - Output: the directory and format (json or yaml) of the written template

  - Server: the configuration for running the workflow API server (ex: the
    listen address, the TLS config the server should run with)

  - TLS: the configuration for constructing a Go tls.Config (ex: the CA cert
    file to use, the key file to use, etc.)
*/
package config
