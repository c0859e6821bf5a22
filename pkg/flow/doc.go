// Package flow drives the browser side of a secured download: navigate to
// the login page, submit credentials, resolve the optional second-factor
// prompt, and click the download trigger. It owns no download-completion
// logic; once the trigger is clicked it takes a baseline directory
// snapshot and hands off to the watcher.
package flow
