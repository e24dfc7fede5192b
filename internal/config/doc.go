// Package config provides configuration loading for the blospray server.
//
// Configuration comes from three layers, applied in order: built-in defaults,
// an optional YAML file, and the BLOSPRAY_* environment toggles which are read
// once at startup. Command line flags override the result.
//
// # Configuration File Structure
//
//	listen: ":5909"
//	admin_listen: "127.0.0.1:5910"
//	plugin_dir: "/usr/local/lib/blospray"
//	scratch_dir: "/dev/shm"
//	poll_interval: 1ms
//	transfer_function_entries: 256
//	threads: 0
//	toggles:
//	  compress_framebuffer: true
//	  keep_framebuffer_files: false
//	  dump_client_messages: false
//	  abort_on_renderer_error: false
//	  dump_server_state: false
//	archive:
//	  kind: s3
//	  bucket: renders
//	  prefix: blospray/
//	  region: eu-west-1
//
// # Usage
//
//	cfg, err := config.Load("blospray.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
//	    log.Fatal(err)
//	}
package config
