/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package clockadj is the thin capability interface over CLOCK_ADJTIME that
the synchronization engine uses to steer whichever clock it has been told
is the slave, real-time or PHC alike.

A Clock exposes exactly the four operations the engine needs: read the
current frequency offset, set a new one, step discontinuously, and arm or
clear a kernel-scheduled leap second. Everything else about the clock -
which device backs it, whether it is the system clock - is invisible past
construction.
*/
package clockadj
