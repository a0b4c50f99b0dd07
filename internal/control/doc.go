// Package control decides buoyancy engine commands from sampled depth.
//
// The [Controller] is a bang-bang machine on two axes:
//
//   - depth: descending until the sampled depth first exceeds the target,
//     then latched as reached for the rest of the mission;
//   - rate: overspeed in the current direction of travel, re-evaluated on
//     every tick.
//
// Every tick samples depth and time. Commands are issued only once the time
// accumulated since the last command reaches the engine update interval, and
// each command moves the commanded engines by exactly one
// [actuator.ExtensionDelta] step, as chosen by [Decide]:
//
//	reached  overspeed  action
//	false    false      sink
//	false    true       ascend
//	true     false      ascend
//	true     true       sink
//
// # Usage
//
//	ctrl, err := control.New(cfg, engines, sensor.Ideal{}, simulator)
//	go ctrl.Run(ctx)
//	ctrl.SetTargetDepth(80)
package control
