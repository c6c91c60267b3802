/*
Package bridge is the Capability Bridge: the typed client a rendering context
uses to reach the controller over its window socket.

The surface is fixed. Invoke only accepts the channels the command router
serves, and the typed groups mirror the router's sub-commands one method each:

	b, err := bridge.Dial(ctx, bridge.Options{URL: "ws://127.0.0.1:7000/ws?window=win_..."})
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.Config().Local.Set(ctx, "theme", "dark"); err != nil {
		return err
	}
	env, err := b.Config().Environment.Read(ctx, "")

The relay window subscribes to configuration broadcasts with HandleConfig.
Requests the controller sends to the window, such as native dialogs, are
answered by Options.OnRequest.
*/
package bridge
