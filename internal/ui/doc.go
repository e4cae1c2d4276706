// Package ui implements the participant player: a bubbletea program that walks a tasting session
// one step at a time.
//
// The [Model] follows bubbletea's Init/Update/View pattern and receives its asynchronous results
// through the Msg union type. Navigation goes through a [playback.Navigator]; answers go through a
// [responses.Recorder] so a slow or unreachable API never stalls the screen. After every transition
// the progress pointer is saved locally and reported to the API, which lets a restarted player
// resume where it left off.
//
// Scale questions are answered with ←/→, choice questions with a list (space toggles when several
// options may be picked) and text questions with a text input. tab and shift+tab move between steps.
package ui
